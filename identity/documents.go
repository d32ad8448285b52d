package identity

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	xmlDeclaration = "<?xml version='1.0' encoding='UTF-8'?>"

	serviceProfileOpen  = "<ServiceProfile>"
	serviceProfileClose = "</ServiceProfile>"

	// DefaultSimservs is the XCAP simservs document given to every subscriber
	// without a supplied one
	DefaultSimservs = `<?xml version="1.0" encoding="UTF-8"?>` +
		`<simservs xmlns="http://uri.etsi.org/ngn/params/xml/simservs/xcap" xmlns:cp="urn:ietf:params:xml:ns:common-policy">` +
		`<originating-identity-presentation active="true" />` +
		`<originating-identity-presentation-restriction active="true">` +
		`<default-behaviour>presentation-not-restricted</default-behaviour>` +
		`</originating-identity-presentation-restriction>` +
		`<communication-diversion active="false" />` +
		`<incoming-communication-barring active="false" />` +
		`<outgoing-communication-barring active="false" />` +
		`</simservs>`

	ifcTemplate = `<?xml version="1.0" encoding="UTF-8"?>` +
		`<ServiceProfile><InitialFilterCriteria>` +
		`<Priority>1</Priority>` +
		`<TriggerPoint><ConditionTypeCNF>0</ConditionTypeCNF>` +
		`<SPT><ConditionNegated>0</ConditionNegated><Group>0</Group><Method>INVITE</Method><Extension></Extension></SPT>` +
		`</TriggerPoint>` +
		`<ApplicationServer><ServerName>sip:mmtel.%s</ServerName><DefaultHandling>0</DefaultHandling></ApplicationServer>` +
		`</InitialFilterCriteria></ServiceProfile>`

	publicIdentityTemplate = "<PublicIdentity><BarringIndication>1</BarringIndication><Identity>%s</Identity></PublicIdentity>"
)

// EscapeText escapes s for use as XML character data
func EscapeText(s string) string {
	var b strings.Builder
	// strings.Builder never returns a write error
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// DefaultIFC returns the initial filter criteria routing INVITEs to the
// MMTel application server of domain
func DefaultIFC(domain string) string {
	return fmt.Sprintf(ifcTemplate, EscapeText(domain))
}

// PublicIdentityXML returns the PublicIdentity element for a public id
func PublicIdentityXML(publicID string) string {
	return fmt.Sprintf(publicIdentityTemplate, EscapeText(publicID))
}

// IMSSubscriptionXML composes the subscription document for one private id,
// one public identity and a ServiceProfile holding the IFCs. The IFC document
// may carry an XML declaration and need not be wrapped in ServiceProfile.
// The result contains no newlines.
func IMSSubscriptionXML(privateID, publicIdentityXML, ifcXML string) string {
	profile := flatten(stripDeclaration(ifcXML))
	if !strings.HasPrefix(profile, serviceProfileOpen) {
		profile = serviceProfileOpen + profile + serviceProfileClose
	}
	cut := strings.LastIndex(profile, serviceProfileClose)

	var b strings.Builder
	b.WriteString(xmlDeclaration)
	b.WriteString(`<IMSSubscription xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="CxDataType.xsd">`)
	b.WriteString("<PrivateID>")
	b.WriteString(EscapeText(privateID))
	b.WriteString("</PrivateID>")
	b.WriteString(profile[:cut])
	b.WriteString(flatten(publicIdentityXML))
	b.WriteString(profile[cut:])
	b.WriteString("</IMSSubscription>")
	return b.String()
}

func stripDeclaration(doc string) string {
	doc = strings.TrimSpace(doc)
	if strings.HasPrefix(doc, "<?xml") {
		if end := strings.Index(doc, "?>"); end >= 0 {
			doc = doc[end+2:]
		}
	}
	return strings.TrimSpace(doc)
}

// flatten removes line breaks together with the indentation that follows them
func flatten(doc string) string {
	if !strings.ContainsAny(doc, "\r\n") {
		return doc
	}
	lines := strings.FieldsFunc(doc, func(r rune) bool { return r == '\n' || r == '\r' })
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "")
}

// SIPDomain extracts the host part of a SIP URI: "sip:alice@example.com;user=phone"
// yields "example.com". A URI without '@' is treated as a bare host.
func SIPDomain(uri string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(uri, "sips:"), "sip:")
	if at := strings.LastIndexByte(s, '@'); at >= 0 {
		s = s[at+1:]
	}
	if semi := strings.IndexAny(s, ";?>"); semi >= 0 {
		s = s[:semi]
	}
	return s
}
