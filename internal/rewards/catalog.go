// Package rewards загружает каталог этапов и бейджей из YAML.
package rewards

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/goalsaver/internal/model"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog содержит упорядоченные этапы и бейджи.
type Catalog struct {
	Milestones []model.Milestone
	Badges     []model.Badge
}

type fileCatalog struct {
	Milestones []struct {
		Threshold string `yaml:"threshold"`
		Reward    string `yaml:"reward"`
	} `yaml:"milestones"`
	Badges []struct {
		ID          int    `yaml:"id"`
		Kind        string `yaml:"kind"`
		Requirement string `yaml:"requirement"`
		MetadataURI string `yaml:"metadata_uri"`
	} `yaml:"badges"`
}

// Default возвращает встроенный каталог.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load читает каталог из файла. Пустой путь означает встроенный каталог.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rewards catalog: %w", err)
	}
	return Parse(data)
}

// Parse разбирает каталог. Суммы задаются в базовых единицах либо с суффиксом целых единиц,
// например "100u" — 100 * 10^18.
func Parse(data []byte) (*Catalog, error) {
	var raw fileCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode rewards catalog: %w", err)
	}

	c := &Catalog{}

	var prev *uint256.Int
	for i, m := range raw.Milestones {
		threshold, err := parseAmount(m.Threshold)
		if err != nil {
			return nil, fmt.Errorf("milestone %d threshold: %w", i, err)
		}
		reward, err := parseAmount(m.Reward)
		if err != nil {
			return nil, fmt.Errorf("milestone %d reward: %w", i, err)
		}
		if threshold.IsZero() {
			return nil, fmt.Errorf("milestone %d: threshold must be positive", i)
		}
		if prev != nil && !threshold.Gt(prev) {
			return nil, fmt.Errorf("milestone %d: thresholds must be strictly increasing", i)
		}
		prev = threshold
		c.Milestones = append(c.Milestones, model.Milestone{
			Index:        i,
			Threshold:    threshold,
			RewardAmount: reward,
		})
	}

	seen := make(map[int]struct{}, len(raw.Badges))
	for _, b := range raw.Badges {
		if _, ok := seen[b.ID]; ok {
			return nil, fmt.Errorf("badge %d: duplicate id", b.ID)
		}
		seen[b.ID] = struct{}{}

		kind := model.BadgeKind(b.Kind)
		var req *uint256.Int
		var err error
		switch kind {
		case model.BadgeTotalSaved:
			req, err = parseAmount(b.Requirement)
		case model.BadgeGoalsCompleted:
			req, err = uint256.FromDecimal(b.Requirement)
		default:
			return nil, fmt.Errorf("badge %d: unknown kind %q", b.ID, b.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("badge %d requirement: %w", b.ID, err)
		}

		c.Badges = append(c.Badges, model.Badge{
			ID:          b.ID,
			Kind:        kind,
			Requirement: req,
			MetadataURI: b.MetadataURI,
		})
	}
	sort.Slice(c.Badges, func(i, j int) bool { return c.Badges[i].ID < c.Badges[j].ID })

	return c, nil
}

// Milestone возвращает этап по индексу.
func (c *Catalog) Milestone(index int) (model.Milestone, bool) {
	if index < 0 || index >= len(c.Milestones) {
		return model.Milestone{}, false
	}
	return c.Milestones[index], true
}

// Badge возвращает бейдж по идентификатору.
func (c *Catalog) Badge(id int) (model.Badge, bool) {
	for _, b := range c.Badges {
		if b.ID == id {
			return b, true
		}
	}
	return model.Badge{}, false
}

func parseAmount(s string) (*uint256.Int, error) {
	if n := len(s); n > 1 && s[n-1] == 'u' {
		whole, err := uint256.FromDecimal(s[:n-1])
		if err != nil {
			return nil, err
		}
		return model.MulChecked(whole, model.One)
	}
	return uint256.FromDecimal(s)
}
