package region

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
)

// Options 分組開關
type Options struct {
	ByCountry       bool   `yaml:"by_country"`
	ByContinent     bool   `yaml:"by_continent"`
	AsiaExceptChina bool   `yaml:"asia_except_china"`
	Umbrella        string `yaml:"umbrella,omitempty"`
	GroupType       string `yaml:"group_type,omitempty"`
}

// Enabled 是否需要生成任何分組
func (o Options) Enabled() bool {
	return o.ByCountry || o.ByContinent || o.AsiaExceptChina
}

const asiaExceptChinaLabel = "🌏 亞洲 (除中國)"

// Grouper 代理名稱分組器。結果按輸入做 TTL 緩存，輸入都是不可變快照，無需主動失效。
type Grouper struct {
	table     Table
	tableHash []byte
	cache     *cache.Cache
}

// NewGrouper 創建分組器，ttl <= 0 時不緩存
func NewGrouper(table Table, ttl time.Duration) *Grouper {
	g := &Grouper{table: table}
	data, _ := yaml.Marshal(table)
	sum := blake2b.Sum256(data)
	g.tableHash = sum[:]
	if ttl > 0 {
		g.cache = cache.New(ttl, 2*ttl)
	}
	return g
}

// Table 當前國家表
func (g *Grouper) Table() Table {
	return g.table
}

// Classify 返回代理名稱所屬的國家
// 先按 emoji 匹配，再按中文名、英文名和別名匹配；
// 被歸為中國但名稱中帶有香港或台灣的代理改歸對應地區
func (g *Grouper) Classify(name string) (Country, bool) {
	c, ok := g.match(name)
	if !ok {
		return Country{}, false
	}
	if c.Code == codeChina {
		for _, code := range []string{codeHongKong, codeTaiwan} {
			if other, found := g.table.byCode(code); found && mentions(name, other) {
				return other, true
			}
		}
	}
	return c, true
}

func (g *Grouper) match(name string) (Country, bool) {
	for _, c := range g.table {
		if c.Emoji != "" && strings.Contains(name, c.Emoji) {
			return c, true
		}
	}
	for _, c := range g.table {
		if mentions(name, c) {
			return c, true
		}
	}
	return Country{}, false
}

func mentions(name string, c Country) bool {
	lower := strings.ToLower(name)
	if c.Name != "" && strings.Contains(name, c.Name) {
		return true
	}
	if c.EnName != "" && strings.Contains(lower, strings.ToLower(c.EnName)) {
		return true
	}
	for _, a := range c.Aliases {
		if a != "" && strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// Group 根據代理名稱生成策略組
// 順序：總覽組、大洲組、亞洲（除中國）組、國家組；沒有成員的組不生成
func (g *Grouper) Group(proxyNames []string, opts Options) []clash.ProxyGroup {
	if !opts.Enabled() || len(proxyNames) == 0 {
		return nil
	}

	key := g.key(proxyNames, opts)
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			return copyGroups(v.([]clash.ProxyGroup))
		}
	}

	groups := g.build(proxyNames, opts)
	if g.cache != nil {
		g.cache.Set(key, groups, cache.DefaultExpiration)
	}
	return copyGroups(groups)
}

func (g *Grouper) build(proxyNames []string, opts Options) []clash.ProxyGroup {
	groupType := opts.GroupType
	if groupType == "" {
		groupType = "select"
	}

	byCountry := make(map[string][]string)
	byContinent := make(map[Continent][]string)
	var asiaNoCN []string
	for _, name := range proxyNames {
		c, ok := g.Classify(name)
		if !ok {
			continue
		}
		byCountry[c.Code] = append(byCountry[c.Code], name)
		byContinent[c.Continent] = append(byContinent[c.Continent], name)
		if c.Continent == Asia && c.Code != codeChina {
			asiaNoCN = append(asiaNoCN, name)
		}
	}

	newGroup := func(name string, members []string) clash.ProxyGroup {
		return clash.ProxyGroup{"name": name, "type": groupType, "proxies": members}
	}

	var countryGroups []clash.ProxyGroup
	var countryLabels []string
	if opts.ByCountry {
		for _, c := range g.table {
			if members := byCountry[c.Code]; len(members) > 0 {
				countryGroups = append(countryGroups, newGroup(c.Label(), members))
				countryLabels = append(countryLabels, c.Label())
			}
		}
	}

	var out []clash.ProxyGroup
	if opts.Umbrella != "" && len(countryLabels) > 0 {
		out = append(out, newGroup(opts.Umbrella, countryLabels))
	}
	if opts.ByContinent {
		for _, ct := range continentOrder {
			if members := byContinent[ct]; len(members) > 0 {
				out = append(out, newGroup(continentLabels[ct], members))
			}
		}
	}
	if opts.AsiaExceptChina && len(asiaNoCN) > 0 {
		out = append(out, newGroup(asiaExceptChinaLabel, asiaNoCN))
	}
	return append(out, countryGroups...)
}

// key 國家表、開關和代理名稱的指紋
func (g *Grouper) key(proxyNames []string, opts Options) string {
	h, _ := blake2b.New256(nil)
	h.Write(g.tableHash)
	optData, _ := yaml.Marshal(opts)
	h.Write(optData)
	for _, n := range proxyNames {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func copyGroups(in []clash.ProxyGroup) []clash.ProxyGroup {
	out := make([]clash.ProxyGroup, 0, len(in))
	for _, g := range in {
		cp := make(clash.ProxyGroup, len(g))
		for k, v := range g {
			if members, ok := v.([]string); ok {
				v = append([]string(nil), members...)
			}
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}
