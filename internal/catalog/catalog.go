// Package catalog 卡号到物品的映射（YAML），按单件重量估算数量
package catalog

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateTag = errors.New("catalog: duplicate tag id")
	ErrInvalidUnit  = errors.New("catalog: unit weight must be >= 0")
)

// Item 物品定义
type Item struct {
	TagID     uint64  `yaml:"id" json:"tag_id"`
	Label     string  `yaml:"label" json:"label"`
	UnitGrams float64 `yaml:"unit_grams" json:"unit_grams"`
}

type file struct {
	Tags []Item `yaml:"tags"`
}

// Catalog 只读映射，加载后并发安全
type Catalog struct {
	items map[uint64]Item
}

// Empty 空目录
func Empty() *Catalog {
	return &Catalog{items: map[uint64]Item{}}
}

// Load 从文件加载；path 为空返回空目录
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := Empty()
	for _, it := range f.Tags {
		if _, dup := c.items[it.TagID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTag, it.TagID)
		}
		if it.UnitGrams < 0 || math.IsNaN(it.UnitGrams) {
			return nil, fmt.Errorf("%w: tag %d", ErrInvalidUnit, it.TagID)
		}
		c.items[it.TagID] = it
	}
	return c, nil
}

// Len 条目数
func (c *Catalog) Len() int { return len(c.items) }

// Lookup 查找卡号
func (c *Catalog) Lookup(tagID uint64) (Item, bool) {
	it, ok := c.items[tagID]
	return it, ok
}

// Count 按单件重量估算数量，未配置单件重量或重量非正时返回 0
func (it Item) Count(grams float64) int {
	if it.UnitGrams <= 0 || grams <= 0 {
		return 0
	}
	return int(math.Round(grams / it.UnitGrams))
}

// Entry 查找结果
type Entry struct {
	Item  string `json:"item,omitempty"`
	Count int    `json:"count"`
	Known bool   `json:"known"`
}

// Resolve 卡号与重量 → 物品与数量
func (c *Catalog) Resolve(tagID uint64, grams float64) Entry {
	it, ok := c.Lookup(tagID)
	if !ok {
		return Entry{}
	}
	return Entry{Item: it.Label, Count: it.Count(grams), Known: true}
}
