// Package rule 定義路由規則的語法樹，以及規則文本 / 字典與語法樹之間的互相轉換。
package rule

import "strings"

// Kind 規則類型
type Kind string

const (
	// 域名
	KindDomain        Kind = "DOMAIN"
	KindDomainSuffix  Kind = "DOMAIN-SUFFIX"
	KindDomainKeyword Kind = "DOMAIN-KEYWORD"
	KindDomainRegex   Kind = "DOMAIN-REGEX"
	KindGeoSite       Kind = "GEOSITE"

	// 目標 IP
	KindIPCIDR   Kind = "IP-CIDR"
	KindIPCIDR6  Kind = "IP-CIDR6"
	KindIPSuffix Kind = "IP-SUFFIX"
	KindIPASN    Kind = "IP-ASN"
	KindGeoIP    Kind = "GEOIP"

	// 來源 IP
	KindSrcGeoIP    Kind = "SRC-GEOIP"
	KindSrcIPASN    Kind = "SRC-IP-ASN"
	KindSrcIPCIDR   Kind = "SRC-IP-CIDR"
	KindSrcIPSuffix Kind = "SRC-IP-SUFFIX"

	// 端口
	KindDstPort Kind = "DST-PORT"
	KindSrcPort Kind = "SRC-PORT"
	KindInPort  Kind = "IN-PORT"

	// 入站
	KindInType Kind = "IN-TYPE"
	KindInUser Kind = "IN-USER"
	KindInName Kind = "IN-NAME"

	// 進程
	KindProcessPath      Kind = "PROCESS-PATH"
	KindProcessPathRegex Kind = "PROCESS-PATH-REGEX"
	KindProcessName      Kind = "PROCESS-NAME"
	KindProcessNameRegex Kind = "PROCESS-NAME-REGEX"
	KindUID              Kind = "UID"

	// 網絡
	KindNetwork Kind = "NETWORK"
	KindDSCP    Kind = "DSCP"

	KindRuleSet Kind = "RULE-SET"

	// 邏輯組合
	KindAnd Kind = "AND"
	KindOr  Kind = "OR"
	KindNot Kind = "NOT"

	KindSubRule Kind = "SUB-RULE"
	KindMatch   Kind = "MATCH"
)

// simpleKinds 可以作為 SimpleRule 的類型
var simpleKinds = map[Kind]struct{}{
	KindDomain: {}, KindDomainSuffix: {}, KindDomainKeyword: {}, KindDomainRegex: {}, KindGeoSite: {},
	KindIPCIDR: {}, KindIPCIDR6: {}, KindIPSuffix: {}, KindIPASN: {}, KindGeoIP: {},
	KindSrcGeoIP: {}, KindSrcIPASN: {}, KindSrcIPCIDR: {}, KindSrcIPSuffix: {},
	KindDstPort: {}, KindSrcPort: {}, KindInPort: {},
	KindInType: {}, KindInUser: {}, KindInName: {},
	KindProcessPath: {}, KindProcessPathRegex: {}, KindProcessName: {}, KindProcessNameRegex: {}, KindUID: {},
	KindNetwork: {}, KindDSCP: {},
	KindRuleSet: {},
}

// ParseKind 將文本轉為規則類型，大小寫不敏感
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case KindAnd, KindOr, KindNot, KindSubRule, KindMatch:
		return k, true
	}
	_, ok := simpleKinds[k]
	return k, ok
}

// IsLogic 是否為 AND / OR / NOT
func (k Kind) IsLogic() bool {
	return k == KindAnd || k == KindOr || k == KindNot
}

// IsSimple 是否為單條件類型
func (k Kind) IsSimple() bool {
	_, ok := simpleKinds[k]
	return ok
}

func (k Kind) isPort() bool {
	return k == KindDstPort || k == KindSrcPort || k == KindInPort
}

func (k Kind) isRegex() bool {
	return strings.HasSuffix(string(k), "-REGEX")
}

func (k Kind) isCIDR() bool {
	return k == KindIPCIDR || k == KindIPCIDR6
}
