package models

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxExtraFields 额外规格字段上限
// 详情页中不在固定字段表里的规格行保存在 Extras 中, 超出上限的直接丢弃
const MaxExtraFields = 32

// numericNoise 匹配数字清洗时需要去掉的字符 (可带前导负号)
var numericNoise = regexp.MustCompile(`-?[^\d.]`)

// SpecRow 详情页规格行 (标签 / 值)
type SpecRow struct {
	Label string
	Value string
}

// RawListing 从详情页提取出的原始数据
// 固定字段按字段名存放, 规格行保持页面顺序
type RawListing struct {
	Company     string
	URL         string
	Brand       string
	Name        string
	Year        string // 未找到时为空
	Price       string // 未找到时为空
	Description string
	Specs       []SpecRow
}

// Listing 单条车辆记录
// Year/Price 缺失时为 nil (CSV中写空), Volume/Mileage 缺失时为 0
type Listing struct {
	Company      string
	URL          string
	Brand        string
	Name         string
	Year         *int
	Price        *int
	Description  string
	City         string
	Generation   string
	Body         string
	Volume       float64
	VolumeType   string
	Mileage      float64
	Transmission string
	Wheel        string
	WheelDrive   string
	Color        string
	CustomKZ     string
	VIN          string
	Availability string

	// Extras 未识别的规格行, 不写入CSV
	Extras map[string]string
}

// Field 固定字段定义
type Field struct {
	// Name CSV列名
	Name string
	// Label 详情页规格行标签, 空表示该字段不来自规格行
	Label string

	set    func(l *Listing, raw string)
	format func(l *Listing) string
}

// VolumeLabel 发动机排量规格行标签, 同时填充 volume 和 volume_type
const VolumeLabel = "Объем двигателя, л"

var listingFields = []Field{
	{Name: "company", format: func(l *Listing) string { return l.Company }},
	{Name: "url", format: func(l *Listing) string { return l.URL }},
	{Name: "brand", format: func(l *Listing) string { return l.Brand }},
	{Name: "name", format: func(l *Listing) string { return l.Name }},
	{Name: "year", format: func(l *Listing) string { return formatOptionalInt(l.Year) }},
	{Name: "price", format: func(l *Listing) string { return formatOptionalInt(l.Price) }},
	{Name: "description", format: func(l *Listing) string { return l.Description }},
	{Name: "city", Label: "Город",
		set:    func(l *Listing, v string) { l.City = v },
		format: func(l *Listing) string { return l.City }},
	{Name: "generation", Label: "Поколение",
		set:    func(l *Listing, v string) { l.Generation = v },
		format: func(l *Listing) string { return l.Generation }},
	{Name: "body", Label: "Кузов",
		set:    func(l *Listing, v string) { l.Body = v },
		format: func(l *Listing) string { return l.Body }},
	{Name: "volume", Label: VolumeLabel,
		set:    func(l *Listing, v string) { l.Volume = ParseCleanFloat(v) },
		format: func(l *Listing) string { return formatFloat(l.Volume) }},
	{Name: "volume_type", Label: VolumeLabel,
		set:    func(l *Listing, v string) { l.VolumeType = ParseVolumeType(v) },
		format: func(l *Listing) string { return l.VolumeType }},
	{Name: "mileage", Label: "Пробег",
		set:    func(l *Listing, v string) { l.Mileage = ParseCleanFloat(v) },
		format: func(l *Listing) string { return formatFloat(l.Mileage) }},
	{Name: "transmission", Label: "Коробка передач",
		set:    func(l *Listing, v string) { l.Transmission = v },
		format: func(l *Listing) string { return l.Transmission }},
	{Name: "wheel", Label: "Руль",
		set:    func(l *Listing, v string) { l.Wheel = v },
		format: func(l *Listing) string { return l.Wheel }},
	{Name: "wheel_drive", Label: "Привод",
		set:    func(l *Listing, v string) { l.WheelDrive = v },
		format: func(l *Listing) string { return l.WheelDrive }},
	{Name: "color", Label: "Цвет",
		set:    func(l *Listing, v string) { l.Color = v },
		format: func(l *Listing) string { return l.Color }},
	{Name: "custom_kz", Label: "Растаможен в Казахстане",
		set:    func(l *Listing, v string) { l.CustomKZ = v },
		format: func(l *Listing) string { return l.CustomKZ }},
	{Name: "vin", Label: "VIN",
		set:    func(l *Listing, v string) { l.VIN = v },
		format: func(l *Listing) string { return l.VIN }},
	{Name: "availability", Label: "Наличие",
		set:    func(l *Listing, v string) { l.Availability = v },
		format: func(l *Listing) string { return l.Availability }},
}

// fieldsByLabel 标签 -> 字段 (一个标签可对应多个字段)
var fieldsByLabel = func() map[string][]Field {
	m := make(map[string][]Field)
	for _, f := range listingFields {
		if f.Label != "" {
			m[f.Label] = append(m[f.Label], f)
		}
	}
	return m
}()

// ListingFields 返回固定字段表 (CSV列顺序)
func ListingFields() []Field {
	out := make([]Field, len(listingFields))
	copy(out, listingFields)
	return out
}

// ListingHeader 返回CSV表头
func ListingHeader() []string {
	header := make([]string, len(listingFields))
	for i, f := range listingFields {
		header[i] = f.Name
	}
	return header
}

// NewListing 将原始数据转换为记录
// 规格行标签两端的空白会被忽略, 同一标签重复出现时以最后一次为准
func NewListing(raw RawListing) *Listing {
	l := &Listing{
		Company:     raw.Company,
		URL:         raw.URL,
		Brand:       raw.Brand,
		Name:        raw.Name,
		Year:        ParseCleanInt(raw.Year),
		Price:       ParseCleanInt(raw.Price),
		Description: raw.Description,
	}

	for _, row := range raw.Specs {
		label := strings.TrimSpace(row.Label)
		value := strings.TrimSpace(row.Value)
		fields, ok := fieldsByLabel[label]
		if !ok {
			l.addExtra(label, value)
			continue
		}
		for _, f := range fields {
			f.set(l, value)
		}
	}
	return l
}

// addExtra 保存未识别的规格行
func (l *Listing) addExtra(label, value string) {
	if label == "" {
		return
	}
	if l.Extras == nil {
		l.Extras = make(map[string]string)
	}
	if _, exists := l.Extras[label]; !exists && len(l.Extras) >= MaxExtraFields {
		return
	}
	l.Extras[label] = value
}

// Row 按表头顺序返回CSV行
func (l *Listing) Row() []string {
	row := make([]string, len(listingFields))
	for i, f := range listingFields {
		row[i] = f.format(l)
	}
	return row
}

// CleanNumeric 去掉数字以外的字符 (保留小数点)
func CleanNumeric(s string) string {
	return numericNoise.ReplaceAllString(s, "")
}

// ParseCleanInt 清洗后解析整数, 为空或无法解析时返回 nil
func ParseCleanInt(s string) *int {
	cleaned := CleanNumeric(s)
	if cleaned == "" {
		return nil
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		f, ferr := strconv.ParseFloat(cleaned, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}

// ParseCleanFloat 清洗后解析浮点数, 为空或无法解析时返回 0
func ParseCleanFloat(s string) float64 {
	cleaned := CleanNumeric(s)
	if cleaned == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseVolumeType 返回括号内的燃料类型, 如 "2 (бензин)" -> "бензин"
func ParseVolumeType(s string) string {
	open := strings.Index(s, "(")
	if open < 0 {
		return ""
	}
	rest := s[open+1:]
	closing := strings.Index(rest, ")")
	if closing < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:closing])
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
