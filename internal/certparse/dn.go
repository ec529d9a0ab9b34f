package certparse

import (
	encoding_asn1 "encoding/asn1"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// cryptobyte/asn1 に定義のない文字列型タグ。
const (
	tagNumericString   = asn1.Tag(18)
	tagUniversalString = asn1.Tag(28)
	tagBMPString       = asn1.Tag(30)
)

// attributeNames は識別名属性OIDの短縮名。
var attributeNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.4":                    "SN",
	"2.5.4.5":                    "SERIALNUMBER",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.9":                    "STREET",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.12":                   "title",
	"2.5.4.17":                   "postalCode",
	"2.5.4.42":                   "GN",
	"2.5.4.97":                   "organizationIdentifier",
	"0.9.2342.19200300.100.1.1":  "UID",
	"0.9.2342.19200300.100.1.25": "DC",
	"1.2.840.113549.1.9.1":       "emailAddress",
}

// readName はName（RDNSequence）を読み取り、エンコード順の文字列表現を返す。
func readName(s *cryptobyte.String) (string, error) {
	var rdns cryptobyte.String
	if !s.ReadASN1(&rdns, asn1.SEQUENCE) {
		return "", fmt.Errorf("malformed Name")
	}

	var parts []string
	for !rdns.Empty() {
		var set cryptobyte.String
		if !rdns.ReadASN1(&set, asn1.SET) {
			return "", fmt.Errorf("malformed RelativeDistinguishedName")
		}
		var atvs []string
		for !set.Empty() {
			atv, err := readAttribute(&set)
			if err != nil {
				return "", err
			}
			atvs = append(atvs, atv)
		}
		if len(atvs) == 0 {
			return "", fmt.Errorf("empty RelativeDistinguishedName")
		}
		parts = append(parts, strings.Join(atvs, "+"))
	}
	return strings.Join(parts, ", "), nil
}

func readAttribute(s *cryptobyte.String) (string, error) {
	var atv cryptobyte.String
	if !s.ReadASN1(&atv, asn1.SEQUENCE) {
		return "", fmt.Errorf("malformed AttributeTypeAndValue")
	}
	var oid encoding_asn1.ObjectIdentifier
	if !atv.ReadASN1ObjectIdentifier(&oid) {
		return "", fmt.Errorf("malformed attribute type")
	}
	var elem cryptobyte.String
	var tag asn1.Tag
	if !atv.ReadAnyASN1Element(&elem, &tag) || !atv.Empty() {
		return "", fmt.Errorf("malformed attribute value")
	}

	name, ok := attributeNames[oid.String()]
	if !ok {
		name = oid.String()
	}
	value, ok := decodeString(elem)
	if !ok {
		return name + "=#" + hex.EncodeToString(elem), nil
	}
	return name + "=" + escapeValue(value), nil
}

// decodeString は文字列型の属性値を復号する。文字列型以外はfalseを返す。
func decodeString(elem cryptobyte.String) (string, bool) {
	var content cryptobyte.String
	var tag asn1.Tag
	if !elem.ReadAnyASN1(&content, &tag) {
		return "", false
	}
	switch tag {
	case asn1.UTF8String, asn1.PrintableString, asn1.IA5String, tagNumericString:
		return string(content), true
	case asn1.T61String:
		// ISO-8859-1として扱う
		runes := make([]rune, len(content))
		for i, b := range content {
			runes[i] = rune(b)
		}
		return string(runes), true
	case tagBMPString:
		if len(content)%2 != 0 {
			return "", false
		}
		units := make([]uint16, len(content)/2)
		for i := range units {
			units[i] = uint16(content[2*i])<<8 | uint16(content[2*i+1])
		}
		return string(utf16.Decode(units)), true
	case tagUniversalString:
		if len(content)%4 != 0 {
			return "", false
		}
		runes := make([]rune, len(content)/4)
		for i := range runes {
			b := content[4*i:]
			runes[i] = rune(b[0])<<24 | rune(b[1])<<16 | rune(b[2])<<8 | rune(b[3])
		}
		return string(runes), true
	}
	return "", false
}

// escapeValue はRFC 4514の規則で属性値をエスケープする。
func escapeValue(v string) string {
	var b strings.Builder
	for i, r := range v {
		switch {
		case r == 0:
			b.WriteString(`\00`)
			continue
		case strings.ContainsRune(`,+"\<>;`, r):
			b.WriteByte('\\')
		case i == 0 && (r == ' ' || r == '#'):
			b.WriteByte('\\')
		case i == len(v)-1 && r == ' ':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
