// Package fanout maps one derived subscriber onto the denormalized rows of a
// schema profile. Profiles are plain data: a keyspace, a list of tables, and
// for each table the row key and column rules that produce its facts.
package fanout

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/identity"
)

// ExistsColumn marks a row as present even when it carries no attributes
const ExistsColumn = "_exists"

// Field selects one derived attribute of an Entity
type Field int

const (
	FieldNone Field = iota
	FieldPublicID
	FieldPrivateID
	FieldRealm
	FieldDigest
	FieldPlaintextSecret // Empty unless Env.EmitPlaintextSecret
	FieldSimservs
	FieldPublicIdentityXML
	FieldIFCXML
	FieldIMSSubscriptionXML
	FieldIRS     // 16-byte store encoding
	FieldSP      // 16-byte store encoding
	FieldIRSText // canonical lowercase text
	FieldSPText  // canonical lowercase text
)

var fieldNames = map[Field]string{
	FieldNone:               "none",
	FieldPublicID:           "public_id",
	FieldPrivateID:          "private_id",
	FieldRealm:              "realm",
	FieldDigest:             "digest",
	FieldPlaintextSecret:    "plaintext_secret",
	FieldSimservs:           "simservs",
	FieldPublicIdentityXML:  "publicidentity_xml",
	FieldIFCXML:             "ifc_xml",
	FieldIMSSubscriptionXML: "ims_subscription_xml",
	FieldIRS:                "irs",
	FieldSP:                 "sp",
	FieldIRSText:            "irs_text",
	FieldSPText:             "sp_text",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Bytes returns the field's value for e. Binary identifiers are returned as
// the entity's own slices so every table referencing them shares the bytes.
func (f Field) Bytes(e *identity.Entity, env *Env) []byte {
	switch f {
	case FieldPublicID:
		return []byte(e.PublicID)
	case FieldPrivateID:
		return []byte(e.PrivateID)
	case FieldRealm:
		return []byte(e.Realm)
	case FieldDigest:
		return []byte(e.Digest)
	case FieldPlaintextSecret:
		if env.EmitPlaintextSecret {
			return []byte(e.Secret)
		}
		return []byte{}
	case FieldSimservs:
		return []byte(e.Simservs)
	case FieldPublicIdentityXML:
		return []byte(e.PublicIdentityXML)
	case FieldIFCXML:
		return []byte(e.IFCXML)
	case FieldIMSSubscriptionXML:
		return []byte(e.IMSSubscriptionXML)
	case FieldIRS:
		return e.IRSBytes
	case FieldSP:
		return e.SPBytes
	case FieldIRSText:
		return []byte(e.IRS.String())
	case FieldSPText:
		return []byte(e.SP.String())
	default:
		return []byte{}
	}
}

// ColumnRule produces one column. The column name is Name, followed by the
// text of NameField when set (e.g. "public_id_" + public id).
type ColumnRule struct {
	Name      string
	NameField Field
	Value     Field
}

// RowGenerator emits any number of cells for one row. Used by tables whose
// columns are synthesized rather than copied from the entity.
type RowGenerator func(e *identity.Entity, env *Env, emit func(column, value []byte))

// TableSpec describes one table of a profile
type TableSpec struct {
	Name      string
	RowKey    Field
	Existence bool // Emit an empty _exists column
	Columns   []ColumnRule
	Generate  RowGenerator
}

// Profile is a named set of tables populated together
type Profile struct {
	Name        string
	Keyspace    string
	Description string
	Tables      []TableSpec
}

// TableNames returns the profile's tables in declaration order
func (p *Profile) TableNames() []string {
	names := make([]string, len(p.Tables))
	for i, t := range p.Tables {
		names[i] = t.Name
	}
	return names
}

// Env carries the per-run inputs fan-out needs besides the entity
type Env struct {
	Timestamp           int64     // Cell timestamp, microseconds
	Now                 time.Time // Anchor for call history
	Rand                *rand.Rand
	Calls               CallSettings
	EmitPlaintextSecret bool
}

// Fanout returns every fact p requires for e. It performs no I/O; the only
// state it touches is env.Rand for tables with a generator.
func Fanout(e *identity.Entity, p *Profile, env *Env) []common.Fact {
	var facts []common.Fact
	for i := range p.Tables {
		facts = AppendTable(facts, e, &p.Tables[i], env)
	}
	return facts
}

// AppendTable appends the facts of a single table to dst
func AppendTable(dst []common.Fact, e *identity.Entity, t *TableSpec, env *Env) []common.Fact {
	key := t.RowKey.Bytes(e, env)
	emit := func(column, value []byte) {
		dst = append(dst, common.Fact{
			Table:     t.Name,
			RowKey:    key,
			Column:    column,
			Value:     value,
			Timestamp: env.Timestamp,
		})
	}

	if t.Existence {
		emit([]byte(ExistsColumn), []byte{})
	}
	for _, c := range t.Columns {
		name := []byte(c.Name)
		if c.NameField != FieldNone {
			name = append(name, c.NameField.Bytes(e, env)...)
		}
		emit(name, c.Value.Bytes(e, env))
	}
	if t.Generate != nil {
		t.Generate(e, env, emit)
	}
	return dst
}

var profiles = map[string]*Profile{}

// Register adds a profile. Panics on a duplicate name.
func Register(p *Profile) {
	if _, exists := profiles[p.Name]; exists {
		panic(fmt.Sprintf("profile %s already registered", p.Name))
	}
	profiles[p.Name] = p
}

// Lookup returns the named profile
func Lookup(name string) (*Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, &common.UsageError{Msg: fmt.Sprintf("unsupported profile %q (available: %v)", name, Names())}
	}
	return p, nil
}

// Names lists registered profiles, sorted
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
