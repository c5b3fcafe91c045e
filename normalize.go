package rdapclient

import (
	"fmt"
	"math/big"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/heimdalr/dag"
)

// QueryContext carries the information the normalizer needs but cannot infer
// from the raw body alone (§4.6's normalize(raw_json, query_context)).
type QueryContext struct {
	BaseURL      string
	QueryURL     string
	DiscoveredVia string // "bootstrap" | "redirect" | "direct"
}

// normalizer converts a decoded RDAP JSON body into the registry-independent
// CanonicalResponse (C5). It never performs I/O and never mutates its input.
type normalizer struct{}

func newNormalizer() *normalizer { return &normalizer{} }

// Normalize implements the §4.6 normalizer contract.
func (n *normalizer) Normalize(raw map[string]any, qctx QueryContext) (CanonicalResponse, error) {
	obj, err := ParseObject(raw)
	if err != nil {
		return CanonicalResponse{}, err
	}

	out := CanonicalResponse{
		FetchedFrom: qctx.BaseURL,
		FetchedAt:   time.Now().UTC(),
		Raw:         raw,
	}
	out.Notices = commonNotices(obj)

	g := dag.NewDAG()

	switch v := obj.(type) {
	case *Domain:
		out.ObjectClass = ObjectClassDomain
		out.Handle = v.Handle
		out.LDHName = lower(v.LDHName)
		out.UnicodeName = v.UnicodeName
		out.Status = dedupStrings(v.Status)
		out.Links = linkHrefs(v.Links)
		out.Remarks = remarkText(v.Remarks)
		out.Port43 = v.Port43
		out.Nameservers = dedupStrings(nameserverHosts(v.Nameservers))
		out.SecureDNS = convertSecureDNS(v.SecureDNS)
		out.Events = convertEvents(v.Events)
		entities, err := n.convertEntities(v.Entities, g, "")
		if err != nil {
			return CanonicalResponse{}, err
		}
		out.Entities = entities

	case *IPNetwork:
		out.ObjectClass = ObjectClassIPNetwork
		out.Handle = v.Handle
		out.Status = dedupStrings(v.Status)
		out.Links = linkHrefs(v.Links)
		out.Remarks = remarkText(v.Remarks)
		out.Port43 = v.Port43
		out.StartAddr = v.StartAddress
		out.EndAddr = v.EndAddress
		out.IPVersion = v.IPVersion
		out.NetworkType = v.Type
		out.CIDR = deriveCIDR(v.StartAddress, v.EndAddress)
		out.Events = convertEvents(v.Events)
		entities, err := n.convertEntities(v.Entities, g, "")
		if err != nil {
			return CanonicalResponse{}, err
		}
		out.Entities = entities

	case *Autnum:
		out.ObjectClass = ObjectClassAutnum
		out.Handle = v.Handle
		out.Status = dedupStrings(v.Status)
		out.Links = linkHrefs(v.Links)
		out.Remarks = remarkText(v.Remarks)
		out.Port43 = v.Port43
		out.StartAutnum = v.StartAutnum
		out.EndAutnum = v.EndAutnum
		out.ASName = v.Name
		out.Events = convertEvents(v.Events)
		entities, err := n.convertEntities(v.Entities, g, "")
		if err != nil {
			return CanonicalResponse{}, err
		}
		out.Entities = entities

	case *Nameserver:
		out.ObjectClass = ObjectClassNameserver
		out.Handle = v.Handle
		out.LDHName = lower(v.LDHName)
		out.UnicodeName = v.UnicodeName
		out.Status = dedupStrings(v.Status)
		out.Links = linkHrefs(v.Links)
		out.Remarks = remarkText(v.Remarks)
		out.Port43 = v.Port43
		out.Events = convertEvents(v.Events)
		entities, err := n.convertEntities(v.Entities, g, "")
		if err != nil {
			return CanonicalResponse{}, err
		}
		out.Entities = entities

	case *Entity:
		entity, err := n.convertEntity(*v, g, "", 0)
		if err != nil {
			return CanonicalResponse{}, err
		}
		out.ObjectClass = ObjectClassEntity
		out.Handle = v.Handle
		out.Status = dedupStrings(v.Status)
		out.Links = linkHrefs(v.Links)
		out.Remarks = remarkText(v.Remarks)
		out.Port43 = v.Port43
		out.Events = convertEvents(v.Events)
		out.Entities = []CanonicalEntity{entity}

	default:
		return CanonicalResponse{}, &ParseError{Reason: "unsupported RDAP object type"}
	}

	return out, nil
}

// convertEntities converts a nested entities[] array, building edges from
// parentID to each child's vertex id in g so a cycle in the nested-entity
// graph (an entity eventually containing itself) is detected rather than
// recursed into forever (§4.6 is silent on this; see design notes).
func (n *normalizer) convertEntities(in []Entity, g *dag.DAG, parentID string) ([]CanonicalEntity, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]CanonicalEntity, 0, len(in))
	for i, e := range in {
		ce, err := n.convertEntity(e, g, parentID, i)
		if err != nil {
			return nil, err
		}
		out = append(out, ce)
	}
	return out, nil
}

func (n *normalizer) convertEntity(e Entity, g *dag.DAG, parentID string, siblingIndex int) (CanonicalEntity, error) {
	id := vertexID(e.Handle, parentID, siblingIndex)
	if _, err := g.AddVertex(dagVertex(id)); err != nil {
		// Vertex already present: this exact handle was seen elsewhere in the
		// graph. Not itself a cycle, but linking it again as a child of
		// parentID might create one; let AddEdge decide.
	}
	if parentID != "" {
		if err := g.AddEdge(parentID, id); err != nil {
			// Adding this edge would create a cycle: keep the entity's own
			// fields but stop descending into its nested entities.
			return CanonicalEntity{
				Handle:  e.Handle,
				Roles:   append([]string(nil), e.Roles...),
				VCard:   parseVCard(e.VCardArray),
				Events:  eventsFromEntity(e),
				Links:   linkHrefs(e.Links),
				Remarks: remarkText(e.Remarks),
			}, nil
		}
	}

	nested, err := n.convertEntities(e.Entities, g, id)
	if err != nil {
		return CanonicalEntity{}, err
	}

	return CanonicalEntity{
		Handle:   e.Handle,
		Roles:    append([]string(nil), e.Roles...),
		VCard:    parseVCard(e.VCardArray),
		Entities: nested,
		Events:   eventsFromEntity(e),
		Links:    linkHrefs(e.Links),
		Remarks:  remarkText(e.Remarks),
	}, nil
}

type dagVertex string

func (v dagVertex) ID() string { return string(v) }

func vertexID(handle, parentID string, siblingIndex int) string {
	if handle != "" {
		return "h:" + handle
	}
	return "anon:" + parentID + ":" + strconv.Itoa(siblingIndex)
}

func eventsFromEntity(e Entity) []CanonicalEvent {
	out := convertEvents(e.Events)
	for _, ea := range e.AsEventActor {
		d, ok := parseRDAPTime(ea.EventDate)
		ev := CanonicalEvent{Action: ea.EventAction}
		if ok {
			ev.Date = d
		}
		out = append(out, ev)
	}
	return out
}

func convertEvents(events []Event) []CanonicalEvent {
	out := make([]CanonicalEvent, 0, len(events))
	for _, ev := range events {
		ce := CanonicalEvent{Action: ev.EventAction, Actor: ev.EventActor}
		if d, ok := parseRDAPTime(ev.EventDate); ok {
			ce.Date = d
		}
		out = append(out, ce)
	}
	return out
}

func parseRDAPTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func convertSecureDNS(sd *SecureDNS) *CanonicalSecureDNS {
	if sd == nil {
		return nil
	}
	return &CanonicalSecureDNS{ZoneSigned: sd.ZoneSigned, DelegationSigned: sd.DelegationSigned}
}

// deriveCIDR reports the CIDR block spanning [start, end] when that range is
// exactly a power-of-two-aligned block (§3.4's "cidr (if derivable)"); it
// returns "" when the range isn't a clean prefix, rather than guessing.
func deriveCIDR(start, end string) string {
	if start == "" || end == "" {
		return ""
	}
	sa, err := netip.ParseAddr(strings.TrimSpace(start))
	if err != nil {
		return ""
	}
	ea, err := netip.ParseAddr(strings.TrimSpace(end))
	if err != nil {
		return ""
	}
	if sa.Is4() != ea.Is4() {
		return ""
	}
	bits := 32
	if !sa.Is4() {
		bits = 128
	}

	s := new(big.Int).SetBytes(sa.AsSlice())
	e := new(big.Int).SetBytes(ea.AsSlice())
	if s.Cmp(e) > 0 {
		return ""
	}

	size := new(big.Int).Sub(e, s)
	size.Add(size, big.NewInt(1))
	hostBits := size.BitLen() - 1
	if hostBits < 0 || new(big.Int).Lsh(big.NewInt(1), uint(hostBits)).Cmp(size) != 0 {
		return "" // span isn't a power of two, so no single prefix covers it exactly
	}

	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(hostBits)), big.NewInt(1))
	if new(big.Int).And(s, mask).Sign() != 0 {
		return "" // start address isn't aligned to that block size
	}

	return fmt.Sprintf("%s/%d", sa.String(), bits-hostBits)
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func nameserverHosts(ns []Nameserver) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		if n.LDHName != "" {
			out = append(out, lower(n.LDHName))
		}
	}
	return out
}

func linkHrefs(links []Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l.Href != "" {
			out = append(out, l.Href)
		}
	}
	return out
}

func remarkText(remarks []Remark) []string {
	var out []string
	for _, r := range remarks {
		out = append(out, r.Description...)
	}
	return out
}

func commonNotices(obj Object) []string {
	type hasNotices interface{ getNotices() []Notice }
	// CommonObject.Notices is only populated on the top-level decoded object;
	// reach it through a type switch rather than an interface, since
	// CommonObject is embedded rather than exposed directly.
	switch v := obj.(type) {
	case *Domain:
		return noticeText(v.CommonObject.Notices)
	case *IPNetwork:
		return noticeText(v.CommonObject.Notices)
	case *Autnum:
		return noticeText(v.CommonObject.Notices)
	case *Nameserver:
		return noticeText(v.CommonObject.Notices)
	case *Entity:
		return noticeText(v.CommonObject.Notices)
	default:
		return nil
	}
}

func noticeText(notices []Notice) []string {
	var out []string
	for _, nt := range notices {
		out = append(out, nt.Description...)
	}
	return out
}

// parseVCard converts jCard's positional array shape
// ["vcard", [[name, params, type, value], ...]] into VCardField records
// (§3.5). Any shape mismatch yields no fields rather than an error, per
// §4.6's rule that missing optional structure is empty, not fatal.
func parseVCard(raw any) []VCardField {
	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return nil
	}
	if tag, ok := arr[0].(string); !ok || !strings.EqualFold(tag, "vcard") {
		return nil
	}
	fields, ok := arr[1].([]any)
	if !ok {
		return nil
	}
	out := make([]VCardField, 0, len(fields))
	for _, f := range fields {
		quad, ok := f.([]any)
		if !ok || len(quad) != 4 {
			continue
		}
		name, _ := quad[0].(string)
		params, _ := quad[1].(map[string]any)
		typ, _ := quad[2].(string)
		out = append(out, VCardField{Name: name, Params: params, Type: typ, Value: quad[3]})
	}
	return out
}
