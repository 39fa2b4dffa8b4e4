package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		maxActive int
		mode      string
		wantErr   bool
	}{
		{"全部未指定", 0, 0, "", false},
		{"合法值", 5, 2, "static", false},
		{"dynamic模式", 1, 32, "dynamic", false},
		{"workers过大", 51, 0, "", true},
		{"workers为负", -1, 0, "", true},
		{"max_active过大", 0, 33, "", true},
		{"非法模式", 0, 0, "all", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlags(tt.workers, tt.maxActive, tt.mode)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveCategories(t *testing.T) {
	file := filepath.Join(t.TempDir(), "categories.txt")
	if err := os.WriteFile(file, []byte("# 品牌\nlada\n\nkia\n"), 0644); err != nil {
		t.Fatalf("写入分类文件失败: %v", err)
	}

	tests := []struct {
		name       string
		fromConfig []string
		fromFlags  []string
		file       string
		want       string
	}{
		{"仅配置文件", []string{"audi", " "}, nil, "", "[audi]"},
		{"命令行替换配置", []string{"audi"}, []string{"toyota", " bmw "}, "", "[toyota bmw]"},
		{"分类文件", []string{"audi"}, nil, file, "[lada kia]"},
		{"命令行加分类文件", nil, []string{"toyota"}, file, "[toyota lada kia]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCategories(tt.fromConfig, tt.fromFlags, tt.file, zerolog.Nop())
			if err != nil {
				t.Fatalf("ResolveCategories() error = %v", err)
			}
			if fmt.Sprint(got) != tt.want {
				t.Errorf("ResolveCategories() = %v, want %s", got, tt.want)
			}
		})
	}

	if _, err := ResolveCategories(nil, nil, filepath.Join(t.TempDir(), "missing.txt"), zerolog.Nop()); err == nil {
		t.Error("分类文件不存在时应返回错误")
	}
}
