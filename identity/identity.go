// Package identity derives every secondary value a subscriber needs before it is
// fanned out into tables: the authentication digest, the registration-set and
// service-profile identifiers, and the XML documents.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/id"
)

const defaultIFCCacheSize = 1024

// Seed is a raw subscriber record as produced by an input adapter. Empty
// optional fields are derived.
type Seed struct {
	Origin string // file name or "range", for diagnostics
	Line   int

	PublicID  string
	PrivateID string
	Realm     string
	Secret    string

	// Optional, pre-computed by a prepared input
	Digest             string
	Simservs           string
	PublicIdentityXML  string
	IFCXML             string
	IMSSubscriptionXML string
	IRS                string // canonical text UUID
	SP                 string // canonical text UUID
}

// Entity is a fully derived subscriber. It is consumed once by fan-out and then dropped.
type Entity struct {
	PublicID  string
	PrivateID string
	Realm     string
	Secret    string
	Digest    string

	Simservs           string
	PublicIdentityXML  string
	IFCXML             string
	IMSSubscriptionXML string

	IRS uuid.UUID
	SP  uuid.UUID

	// 16-byte store encodings of IRS and SP. Every table referencing the ids
	// uses these slices so both sides carry identical bytes.
	IRSBytes []byte
	SPBytes  []byte
}

// Digest returns the lowercase hex MD5 over "private:realm:secret"
func Digest(privateID, realm, secret string) string {
	sum := md5.Sum([]byte(privateID + ":" + realm + ":" + secret))
	return hex.EncodeToString(sum[:])
}

// Deriver turns seeds into entities. Not safe for concurrent use; the id
// generator is normally backed by the run's single random source.
type Deriver struct {
	ids  id.Generator
	ifcs *lru.Cache[string, string]
}

// NewDeriver creates a deriver drawing identifiers from ids. IFC documents are
// cached per domain, up to cacheSize domains.
func NewDeriver(ids id.Generator, cacheSize int) (*Deriver, error) {
	if cacheSize <= 0 {
		cacheSize = defaultIFCCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Deriver{ids: ids, ifcs: cache}, nil
}

// Derive fills in everything the seed leaves empty. Malformed identifier
// text fails with *common.MalformedIdentifierError; the caller skips the seed.
func (d *Deriver) Derive(seed Seed) (*Entity, error) {
	if seed.PublicID == "" {
		return nil, &common.InputParseError{Origin: seed.Origin, Line: seed.Line, Reason: "missing public identity"}
	}
	if seed.PrivateID == "" {
		return nil, &common.InputParseError{Origin: seed.Origin, Line: seed.Line, Reason: "missing private identity"}
	}

	e := &Entity{
		PublicID:  seed.PublicID,
		PrivateID: seed.PrivateID,
		Realm:     seed.Realm,
		Secret:    seed.Secret,
		Digest:    seed.Digest,
		Simservs:  seed.Simservs,
	}

	if e.Realm == "" {
		e.Realm = SIPDomain(seed.PublicID)
	}
	if e.Digest == "" {
		e.Digest = Digest(e.PrivateID, e.Realm, e.Secret)
	}
	if e.Simservs == "" {
		e.Simservs = DefaultSimservs
	}

	e.PublicIdentityXML = seed.PublicIdentityXML
	if e.PublicIdentityXML == "" {
		e.PublicIdentityXML = PublicIdentityXML(e.PublicID)
	}
	e.IFCXML = seed.IFCXML
	if e.IFCXML == "" {
		e.IFCXML = d.defaultIFC(SIPDomain(e.PublicID))
	}
	e.IMSSubscriptionXML = seed.IMSSubscriptionXML
	if e.IMSSubscriptionXML == "" {
		e.IMSSubscriptionXML = IMSSubscriptionXML(e.PrivateID, e.PublicIdentityXML, e.IFCXML)
	}

	if err := d.deriveIDs(seed, e); err != nil {
		return nil, err
	}
	e.IRSBytes = id.Bytes(e.IRS)
	e.SPBytes = id.Bytes(e.SP)
	return e, nil
}

func (d *Deriver) deriveIDs(seed Seed, e *Entity) error {
	var err error
	switch {
	case seed.IRS == "" && seed.SP == "":
		e.IRS, e.SP, err = id.NewPair(d.ids)
		return err

	case seed.IRS == "":
		if e.SP, err = id.Parse("sp_uuid", seed.SP); err != nil {
			return err
		}
		e.IRS, err = d.distinctFrom(e.SP)
		return err

	default:
		if e.IRS, err = id.Parse("irs_uuid", seed.IRS); err != nil {
			return err
		}
		if seed.SP != "" {
			if e.SP, err = id.Parse("sp_uuid", seed.SP); err != nil {
				return err
			}
			if e.SP == e.IRS {
				return &common.MalformedIdentifierError{
					Field: "sp_uuid",
					Value: seed.SP,
					Err:   fmt.Errorf("equals irs_uuid"),
				}
			}
			return nil
		}
		e.SP, err = d.distinctFrom(e.IRS)
		return err
	}
}

func (d *Deriver) distinctFrom(other uuid.UUID) (uuid.UUID, error) {
	for {
		u, err := d.ids.NewUUID()
		if err != nil {
			return uuid.Nil, err
		}
		if u != other {
			return u, nil
		}
	}
}

func (d *Deriver) defaultIFC(domain string) string {
	if doc, ok := d.ifcs.Get(domain); ok {
		return doc
	}
	doc := DefaultIFC(domain)
	d.ifcs.Add(domain, doc)
	return doc
}
