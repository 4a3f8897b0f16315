package registry

import (
	"fmt"
	"os"

	"github.com/wfunc/autopbw/internal/models"
	"gopkg.in/yaml.v3"
)

// Defaults 随程序分发的引擎/模组默认配置
type Defaults struct {
	Engines []*models.Engine `yaml:"engines"`
	Mods    []*models.Mod    `yaml:"mods"`
}

// LoadDefaults 读取默认配置文件，文件不存在时返回空配置
func LoadDefaults(path string) (*Defaults, error) {
	if path == "" {
		return &Defaults{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Defaults{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseDefaults(data)
}

// ParseDefaults 解析YAML格式的默认配置
func ParseDefaults(data []byte) (*Defaults, error) {
	d := &Defaults{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse defaults: %w", err)
	}
	for _, e := range d.Engines {
		if e.Code == "" {
			return nil, fmt.Errorf("parse defaults: engine without code")
		}
	}
	for _, m := range d.Mods {
		if m.Code == "" {
			return nil, fmt.Errorf("parse defaults: mod without code")
		}
	}
	return d, nil
}

func (d *Defaults) engine(code string) *models.Engine {
	if d == nil {
		return nil
	}
	for _, e := range d.Engines {
		if e.Code == code {
			return e
		}
	}
	return nil
}

func (d *Defaults) mod(code string) *models.Mod {
	if d == nil {
		return nil
	}
	for _, m := range d.Mods {
		if m.Code == code {
			return m
		}
	}
	return nil
}
