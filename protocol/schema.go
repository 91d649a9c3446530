package protocol

import (
	"strings"

	"github.com/pkg/errors"
)

// RowKeyField is always the first field of a schema.
const RowKeyField = "rowkey"

var (
	ErrUnknownVersion      = errors.New("unknown protocol version")
	ErrIncompatibleVersion = errors.New("incompatible protocol version")
)

// Column addresses one field in the store.
type Column struct {
	Family    string
	Qualifier string
}

func (c Column) String() string {
	return c.Family + ":" + c.Qualifier
}

// versions holds the field layout of every protocol version this build speaks.
// Layouts are append-only: a change to a field list is a new version.
var versions = map[int][]string{
	1: {
		RowKeyField,
		"fm_contents:bodyText",
		"fm_contents:cleanedText",
		"fm_contents:title",
		"fm_input_info:author",
		"fm_input_info:baseurl",
		"fm_input_info:campId",
		"fm_input_info:createdDate",
		"fm_input_info:insertedDate",
		"fm_input_info:languageCode",
		"fm_input_info:mediaType",
		"fm_input_info:sourceCode",
		"fm_input_info:sourceId",
		"fm_input_info:url",
		"fm_input_info:sentiment",
	},
}

// ProtocolSchema is the fixed, ordered field layout for one protocol version.
// It is immutable after NewSchema returns.
type ProtocolSchema struct {
	version int
	fields  []string
	columns []Column
}

// NewSchema returns the schema for the given version.
func NewSchema(version int) (*ProtocolSchema, error) {
	fields, ok := versions[version]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownVersion, "version=%d", version)
	}
	return newSchema(version, fields)
}

func newSchema(version int, fields []string) (*ProtocolSchema, error) {
	if len(fields) == 0 || fields[0] != RowKeyField {
		return nil, errors.Errorf("first field of version %d must be %q", version, RowKeyField)
	}

	columns := make([]Column, 0, len(fields)-1)
	for _, f := range fields[1:] {
		parts := strings.SplitN(f, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("field %q of version %d is not family:qualifier", f, version)
		}
		columns = append(columns, Column{Family: parts[0], Qualifier: parts[1]})
	}

	return &ProtocolSchema{
		version: version,
		fields:  append([]string(nil), fields...),
		columns: columns,
	}, nil
}

func (s *ProtocolSchema) Version() int {
	return s.version
}

// IsCompatible reports whether a peer speaking peerVersion uses this layout.
func (s *ProtocolSchema) IsCompatible(peerVersion int) bool {
	return peerVersion == s.version
}

// Fields returns all field names, row key first.
func (s *ProtocolSchema) Fields() []string {
	return append([]string(nil), s.fields...)
}

// FieldsWithFamily returns the (family, qualifier) pair of every non-key
// field, in wire order.
func (s *ProtocolSchema) FieldsWithFamily() []Column {
	return append([]Column(nil), s.columns...)
}

// NumValues is the number of value lines that follow a row key on the wire.
func (s *ProtocolSchema) NumValues() int {
	return len(s.columns)
}
