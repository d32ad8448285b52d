package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/maxpert/provision/cfg"
	"github.com/maxpert/provision/common"
	"github.com/maxpert/provision/identity"
)

const utf8BOM = "\uFEFF"

// Column layouts
const (
	flatColumns        = 4  // public,private,realm,password
	legacyColumns      = 5  // public,private,digest,simservs,ifc
	preparedMinColumns = 9  // public,private,realm,ha1,simservs,publicidentity,ifc,imssubscription,irs
	preparedMaxColumns = 11 // ...,sp,password
)

// CSVSource reads seeds from comma separated lines
type CSVSource struct {
	origin  string
	format  cfg.SourceFormat
	comment string
	reader  *csv.Reader
	closer  io.Closer
	first   bool
}

// NewCSV reads seeds from r. origin names the input in diagnostics;
// commentPrefix lines are skipped, as are blank lines.
func NewCSV(origin string, r io.Reader, format cfg.SourceFormat, commentPrefix string) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // width is checked per variant
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	if utf8.RuneCountInString(commentPrefix) == 1 {
		cr.Comment, _ = utf8.DecodeRuneInString(commentPrefix)
	}

	s := &CSVSource{
		origin:  origin,
		format:  format,
		comment: commentPrefix,
		reader:  cr,
		first:   true,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Origin returns the input name
func (s *CSVSource) Origin() string {
	return s.origin
}

// Next returns the next seed
func (s *CSVSource) Next() (identity.Seed, error) {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return identity.Seed{}, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return identity.Seed{}, &common.InputParseError{Origin: s.origin, Line: perr.Line, Reason: perr.Err.Error()}
			}
			return identity.Seed{}, fmt.Errorf("failed to read %s: %w", s.origin, err)
		}

		line, _ := s.reader.FieldPos(0)
		if s.first {
			record[0] = strings.TrimPrefix(record[0], utf8BOM)
			s.first = false
		}
		if s.skippable(record) {
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}

		seed, err := parseRecord(s.format, record)
		if err != nil {
			return identity.Seed{}, &common.InputParseError{Origin: s.origin, Line: line, Reason: err.Error()}
		}
		seed.Origin = s.origin
		seed.Line = line
		return seed, nil
	}
}

// skippable reports comment lines with multi-character prefixes and lines
// holding only empty fields
func (s *CSVSource) skippable(record []string) bool {
	if s.comment != "" && strings.HasPrefix(strings.TrimSpace(record[0]), s.comment) {
		return true
	}
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// Close closes the underlying reader when it is closable
func (s *CSVSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func parseRecord(format cfg.SourceFormat, record []string) (identity.Seed, error) {
	n := len(record)
	switch format {
	case cfg.SourceFlat:
		if n < flatColumns {
			return identity.Seed{}, fmt.Errorf("expected at least %d columns, got %d", flatColumns, n)
		}
		return parseFlat(record), nil

	case cfg.SourceLegacy:
		if n != legacyColumns {
			return identity.Seed{}, fmt.Errorf("expected %d columns, got %d", legacyColumns, n)
		}
		return parseLegacy(record), nil

	case cfg.SourcePrepared:
		if n < preparedMinColumns || n > preparedMaxColumns {
			return identity.Seed{}, fmt.Errorf("expected %d to %d columns, got %d", preparedMinColumns, preparedMaxColumns, n)
		}
		return parsePrepared(record), nil

	case cfg.SourceAuto, "":
		switch {
		case n == flatColumns:
			return parseFlat(record), nil
		case n == legacyColumns:
			return parseLegacy(record), nil
		case n >= preparedMinColumns && n <= preparedMaxColumns:
			return parsePrepared(record), nil
		}
		return identity.Seed{}, fmt.Errorf("unrecognized layout with %d columns", n)

	default:
		return identity.Seed{}, fmt.Errorf("unknown source format %q", format)
	}
}

func parseFlat(r []string) identity.Seed {
	return identity.Seed{
		PublicID:  r[0],
		PrivateID: r[1],
		Realm:     r[2],
		Secret:    r[3],
	}
}

func parseLegacy(r []string) identity.Seed {
	return identity.Seed{
		PublicID:  r[0],
		PrivateID: r[1],
		Digest:    r[2],
		Simservs:  r[3],
		IFCXML:    r[4],
	}
}

func parsePrepared(r []string) identity.Seed {
	seed := identity.Seed{
		PublicID:           r[0],
		PrivateID:          r[1],
		Realm:              r[2],
		Digest:             r[3],
		Simservs:           r[4],
		PublicIdentityXML:  r[5],
		IFCXML:             r[6],
		IMSSubscriptionXML: r[7],
		IRS:                r[8],
	}
	if len(r) > 9 {
		seed.SP = r[9]
	}
	if len(r) > 10 {
		seed.Secret = r[10]
	}
	return seed
}
