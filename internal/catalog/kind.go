package catalog

// Kind is a scalar category that can be bound as a database parameter.
type Kind int

const (
	Invalid Kind = iota
	Bool
	Byte
	Short
	Int
	Long
	Float
	Double
	Decimal
	String
	NullableString
	Char
	Guid
	Bytes
	DateTime
	Enum
)

var kindNames = [...]string{
	Invalid:        "invalid",
	Bool:           "bool",
	Byte:           "byte",
	Short:          "short",
	Int:            "int",
	Long:           "long",
	Float:          "float",
	Double:         "double",
	Decimal:        "decimal",
	String:         "string",
	NullableString: "nullable_string",
	Char:           "char",
	Guid:           "guid",
	Bytes:          "bytes",
	DateTime:       "datetime",
	Enum:           "enum",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}

// IsKey reports whether k can act as a primary key.
func (k Kind) IsKey() bool {
	switch k {
	case Short, Int, Long, String, Guid:
		return true
	}
	return false
}

// IsAutoIncrement reports whether the database can generate keys of kind k.
func (k Kind) IsAutoIncrement() bool {
	switch k {
	case Short, Int, Long:
		return true
	}
	return false
}
