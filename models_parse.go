package rdapclient

import "encoding/json"

// Object is a union interface implemented by all object classes.
type Object interface {
	GetObjectClassName() string
}

// ParseObject inspects objectClassName and returns a typed object per RFC
// 9083. When objectClassName is absent, the shape is inferred from
// distinguishing fields (§4.6): nameservers -> domain, startAddress/
// endAddress -> ip network, startAutnum/endAutnum -> autnum, a top-level
// vcardArray -> entity, ldhName together with ipAddresses -> nameserver. A
// shape matching none of these is a ParseError.
func ParseObject(m map[string]any) (Object, error) {
	if m == nil {
		return nil, &ParseError{Reason: "nil RDAP object"}
	}
	ocn, _ := m["objectClassName"].(string)
	if ocn == "" {
		ocn = inferObjectClassName(m)
	}
	switch lower(ocn) {
	case "entity":
		var v Entity
		if v.ObjectClassName == "" {
			v.ObjectClassName = ocn
		}
		if err := decodeInto(m, &v); err != nil {
			return nil, &ParseError{Reason: "decoding entity: " + err.Error()}
		}
		if !v.Validate() {
			return nil, &ParseError{Field: "objectClassName", Reason: "decoded entity failed shape validation"}
		}
		return &v, nil
	case "domain":
		var v Domain
		if v.ObjectClassName == "" {
			v.ObjectClassName = ocn
		}
		if err := decodeInto(m, &v); err != nil {
			return nil, &ParseError{Reason: "decoding domain: " + err.Error()}
		}
		if !v.Validate() {
			return nil, &ParseError{Field: "objectClassName", Reason: "decoded domain failed shape validation"}
		}
		return &v, nil
	case "nameserver":
		var v Nameserver
		if v.ObjectClassName == "" {
			v.ObjectClassName = ocn
		}
		if err := decodeInto(m, &v); err != nil {
			return nil, &ParseError{Reason: "decoding nameserver: " + err.Error()}
		}
		if !v.Validate() {
			return nil, &ParseError{Field: "objectClassName", Reason: "decoded nameserver failed shape validation"}
		}
		return &v, nil
	case "ip network":
		var v IPNetwork
		if v.ObjectClassName == "" {
			v.ObjectClassName = ocn
		}
		if err := decodeInto(m, &v); err != nil {
			return nil, &ParseError{Reason: "decoding ip network: " + err.Error()}
		}
		if !v.Validate() {
			return nil, &ParseError{Field: "objectClassName", Reason: "decoded ip network failed shape validation"}
		}
		return &v, nil
	case "autnum":
		var v Autnum
		if v.ObjectClassName == "" {
			v.ObjectClassName = ocn
		}
		if err := decodeInto(m, &v); err != nil {
			return nil, &ParseError{Reason: "decoding autnum: " + err.Error()}
		}
		if !v.Validate() {
			return nil, &ParseError{Field: "objectClassName", Reason: "decoded autnum failed shape validation"}
		}
		return &v, nil
	default:
		return nil, &ParseError{Reason: "unrecognized RDAP object shape"}
	}
}

// inferObjectClassName guesses an RFC 9083 object class from distinguishing
// fields when objectClassName is missing (§4.6).
func inferObjectClassName(m map[string]any) string {
	switch {
	case m["nameservers"] != nil:
		return "domain"
	case m["startAddress"] != nil || m["endAddress"] != nil:
		return "ip network"
	case m["startAutnum"] != nil || m["endAutnum"] != nil:
		return "autnum"
	case m["vcardArray"] != nil:
		return "entity"
	case m["ldhName"] != nil && m["ipAddresses"] != nil:
		return "nameserver"
	default:
		return ""
	}
}

func decodeInto(m map[string]any, v any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
