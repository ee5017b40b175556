// Package region 按國家 / 大洲對代理名稱分組，生成 select 類型的策略組。
// 國家表是可替換的數據，可從 YAML 加載。
package region

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Continent 大洲
type Continent string

const (
	Asia         Continent = "asia"
	Europe       Continent = "europe"
	NorthAmerica Continent = "north_america"
	SouthAmerica Continent = "south_america"
	Africa       Continent = "africa"
	Oceania      Continent = "oceania"
)

var continentOrder = []Continent{Asia, Europe, NorthAmerica, SouthAmerica, Oceania, Africa}

var continentLabels = map[Continent]string{
	Asia:         "🌏 亞洲",
	Europe:       "🌍 歐洲",
	NorthAmerica: "🌎 北美洲",
	SouthAmerica: "🌎 南美洲",
	Africa:       "🌍 非洲",
	Oceania:      "🌏 大洋洲",
}

// Country 國家或地區
type Country struct {
	Code      string    `yaml:"code"`
	Emoji     string    `yaml:"emoji"`
	Name      string    `yaml:"name"`
	EnName    string    `yaml:"en_name"`
	Aliases   []string  `yaml:"aliases,omitempty"`
	Continent Continent `yaml:"continent"`
}

// Label 策略組名稱
func (c Country) Label() string {
	return c.Emoji + " " + c.Name
}

// Table 國家表，分類時按表中順序匹配
type Table []Country

const (
	codeChina    = "CN"
	codeHongKong = "HK"
	codeTaiwan   = "TW"
)

// DefaultTable 內置國家表
func DefaultTable() Table {
	return Table{
		{Code: "HK", Emoji: "🇭🇰", Name: "香港", EnName: "Hong Kong", Aliases: []string{"HongKong"}, Continent: Asia},
		{Code: "TW", Emoji: "🇹🇼", Name: "台灣", EnName: "Taiwan", Aliases: []string{"台湾", "臺灣"}, Continent: Asia},
		{Code: "MO", Emoji: "🇲🇴", Name: "澳門", EnName: "Macau", Aliases: []string{"澳门", "Macao"}, Continent: Asia},
		{Code: "JP", Emoji: "🇯🇵", Name: "日本", EnName: "Japan", Aliases: []string{"東京", "东京", "大阪", "Tokyo", "Osaka"}, Continent: Asia},
		{Code: "KR", Emoji: "🇰🇷", Name: "韓國", EnName: "Korea", Aliases: []string{"韩国", "首爾", "首尔", "Seoul"}, Continent: Asia},
		{Code: "SG", Emoji: "🇸🇬", Name: "新加坡", EnName: "Singapore", Aliases: []string{"獅城", "狮城"}, Continent: Asia},
		{Code: "ID", Emoji: "🇮🇩", Name: "印尼", EnName: "Indonesia", Aliases: []string{"印度尼西亞", "印度尼西亚"}, Continent: Asia},
		{Code: "IN", Emoji: "🇮🇳", Name: "印度", EnName: "India", Aliases: []string{"Mumbai"}, Continent: Asia},
		{Code: "TH", Emoji: "🇹🇭", Name: "泰國", EnName: "Thailand", Aliases: []string{"泰国", "曼谷"}, Continent: Asia},
		{Code: "VN", Emoji: "🇻🇳", Name: "越南", EnName: "Vietnam", Continent: Asia},
		{Code: "MY", Emoji: "🇲🇾", Name: "馬來西亞", EnName: "Malaysia", Aliases: []string{"马来西亚"}, Continent: Asia},
		{Code: "PH", Emoji: "🇵🇭", Name: "菲律賓", EnName: "Philippines", Aliases: []string{"菲律宾"}, Continent: Asia},
		{Code: "TR", Emoji: "🇹🇷", Name: "土耳其", EnName: "Turkey", Aliases: []string{"Türkiye"}, Continent: Asia},
		{Code: "AE", Emoji: "🇦🇪", Name: "阿聯酋", EnName: "United Arab Emirates", Aliases: []string{"阿联酋", "迪拜", "Dubai"}, Continent: Asia},
		{Code: "CN", Emoji: "🇨🇳", Name: "中國", EnName: "China", Aliases: []string{"中国", "回國", "回国"}, Continent: Asia},
		{Code: "US", Emoji: "🇺🇸", Name: "美國", EnName: "United States", Aliases: []string{"美国", "USA", "洛杉磯", "洛杉矶", "硅谷", "Los Angeles", "San Jose"}, Continent: NorthAmerica},
		{Code: "CA", Emoji: "🇨🇦", Name: "加拿大", EnName: "Canada", Continent: NorthAmerica},
		{Code: "MX", Emoji: "🇲🇽", Name: "墨西哥", EnName: "Mexico", Continent: NorthAmerica},
		{Code: "BR", Emoji: "🇧🇷", Name: "巴西", EnName: "Brazil", Continent: SouthAmerica},
		{Code: "AR", Emoji: "🇦🇷", Name: "阿根廷", EnName: "Argentina", Continent: SouthAmerica},
		{Code: "CL", Emoji: "🇨🇱", Name: "智利", EnName: "Chile", Continent: SouthAmerica},
		{Code: "GB", Emoji: "🇬🇧", Name: "英國", EnName: "United Kingdom", Aliases: []string{"英国", "倫敦", "伦敦", "London"}, Continent: Europe},
		{Code: "DE", Emoji: "🇩🇪", Name: "德國", EnName: "Germany", Aliases: []string{"德国", "法蘭克福", "法兰克福", "Frankfurt"}, Continent: Europe},
		{Code: "FR", Emoji: "🇫🇷", Name: "法國", EnName: "France", Aliases: []string{"法国", "巴黎", "Paris"}, Continent: Europe},
		{Code: "NL", Emoji: "🇳🇱", Name: "荷蘭", EnName: "Netherlands", Aliases: []string{"荷兰", "阿姆斯特丹", "Amsterdam"}, Continent: Europe},
		{Code: "RU", Emoji: "🇷🇺", Name: "俄羅斯", EnName: "Russia", Aliases: []string{"俄罗斯", "莫斯科", "Moscow"}, Continent: Europe},
		{Code: "IT", Emoji: "🇮🇹", Name: "意大利", EnName: "Italy", Aliases: []string{"義大利"}, Continent: Europe},
		{Code: "ES", Emoji: "🇪🇸", Name: "西班牙", EnName: "Spain", Continent: Europe},
		{Code: "CH", Emoji: "🇨🇭", Name: "瑞士", EnName: "Switzerland", Continent: Europe},
		{Code: "SE", Emoji: "🇸🇪", Name: "瑞典", EnName: "Sweden", Continent: Europe},
		{Code: "PL", Emoji: "🇵🇱", Name: "波蘭", EnName: "Poland", Aliases: []string{"波兰"}, Continent: Europe},
		{Code: "UA", Emoji: "🇺🇦", Name: "烏克蘭", EnName: "Ukraine", Aliases: []string{"乌克兰"}, Continent: Europe},
		{Code: "AU", Emoji: "🇦🇺", Name: "澳洲", EnName: "Australia", Aliases: []string{"澳大利亞", "澳大利亚", "悉尼", "Sydney"}, Continent: Oceania},
		{Code: "NZ", Emoji: "🇳🇿", Name: "紐西蘭", EnName: "New Zealand", Aliases: []string{"新西兰", "新西蘭"}, Continent: Oceania},
		{Code: "ZA", Emoji: "🇿🇦", Name: "南非", EnName: "South Africa", Continent: Africa},
		{Code: "EG", Emoji: "🇪🇬", Name: "埃及", EnName: "Egypt", Continent: Africa},
		{Code: "NG", Emoji: "🇳🇬", Name: "尼日利亞", EnName: "Nigeria", Aliases: []string{"尼日利亚"}, Continent: Africa},
	}
}

// LoadTable 從 YAML 加載國家表
func LoadTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("解析國家表失敗: %w", err)
	}
	seen := make(map[string]struct{}, len(t))
	for i, c := range t {
		if c.Code == "" || c.Name == "" {
			return nil, fmt.Errorf("國家表第 %d 項缺少 code 或 name", i)
		}
		if _, dup := seen[c.Code]; dup {
			return nil, fmt.Errorf("國家表中 %s 重複", c.Code)
		}
		seen[c.Code] = struct{}{}
	}
	return t, nil
}

func (t Table) byCode(code string) (Country, bool) {
	for _, c := range t {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}
