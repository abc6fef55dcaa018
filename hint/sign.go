package hint

// Sign is a process-wide singleton tag identifying a category of hint shape.
// Signs are immutable and compared by identity; every supported hint maps to
// exactly one sign.
type Sign struct {
	name string
}

func (s *Sign) String() string { return s.name }

func newSign(name string) *Sign { return &Sign{name: name} }

var (
	SignType           = newSign("type")
	SignAny            = newSign("any")
	SignNone           = newSign("none")
	SignSelf           = newSign("self")
	SignNotImplemented = newSign("notimplemented")
	SignUnion          = newSign("union")
	SignSequence       = newSign("sequence")
	SignTuple          = newSign("tuple")
	SignMapping        = newSign("mapping")
	SignLiteral        = newSign("literal")
	SignAnnotated      = newSign("annotated")
	SignNewType        = newSign("newtype")
	SignTypeVar        = newSign("typevar")
	SignGeneric        = newSign("generic")
	SignProtocol       = newSign("protocol")
	SignRecord         = newSign("record")
	SignRef            = newSign("ref")
	SignSchema         = newSign("schema")
)

// Signs returns every sign the classifier can produce, for rule-table
// completeness checks.
func Signs() []*Sign {
	return []*Sign{
		SignType, SignAny, SignNone, SignSelf, SignNotImplemented,
		SignUnion, SignSequence, SignTuple, SignMapping, SignLiteral,
		SignAnnotated, SignNewType, SignTypeVar, SignGeneric,
		SignProtocol, SignRecord, SignRef, SignSchema,
	}
}
