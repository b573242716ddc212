// Package assets derives the candidate cache paths of the character viewer.
package assets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBasePath     = "/model/Azue Lane(JP)/"
	DefaultTextureSlots = 10
)

// DefaultModelIDs lists the characters shipped with the viewer.
var DefaultModelIDs = []string{
	"tianlangxing_3",
	"bisimai_2",
	"huangjiafangzhou_3",
	"dafeng_2",
	"aidang_2",
	"aierdeliqi_4",
	"aierdeliqi_5",
	"aimierbeierding_2",
	"banrenma_2",
	"beierfasite_2",
	"biaoqiang",
	"biaoqiang_3",
	"chuixue_3",
	"deyizhi_3",
	"dujiaoshou_4",
	"dunkeerke_2",
	"huonululu_3",
	"huonululu_5",
	"kelifulan_3",
	"lafei",
	"lafei_4",
	"lingbo",
	"mingshi",
	"qibolin_2",
	"shengluyisi_2",
	"shengluyisi_3",
	"taiyuan_2",
	"tierbici_2",
	"xuefeng",
	"yichui_2",
	"z23",
	"z46_2",
	"genaisennao_2",
	"heitaizi_2",
	"ninghai_4",
	"pinghai_4",
	"sipeibojue_5",
	"xianghe_2",
	"xixuegui_4",
	"zhala_2",
}

// DefaultMotions is the animation clip vocabulary probed for every model.
var DefaultMotions = []string{
	"idle", "main_1", "main_2", "main_3", "login", "home",
	"touch_body", "touch_head", "touch_special", "mission",
	"mission_complete", "complete", "mail", "wedding",
}

// DefaultCoreFiles are the viewer documents, scripts and styles.
var DefaultCoreFiles = []string{
	"/",
	"/index.html",
	"/live2d_3/js/pixi.min.js",
	"/live2d_3/js/live2dcubismcore.min.js",
	"/live2d_3/js/live2dcubismframework.js",
	"/live2d_3/js/live2dcubismpixi.js",
	"/live2d_3/js/l2d.js",
	"/live2d_3/js/main.js",
	"/live2d_3/css/bootstrap.min.css",
}

var ErrInvalidModelID = errors.New("invalid model id")

// Manifest is the static description the path set is derived from.
type Manifest struct {
	BasePath     string   `yaml:"base_path"`
	ModelIDs     []string `yaml:"model_ids"`
	TextureSlots *int     `yaml:"texture_slots"`
	Motions      []string `yaml:"motions"`
	CoreFiles    []string `yaml:"core_files"`
}

func Default() Manifest {
	slots := DefaultTextureSlots
	return Manifest{
		BasePath:     DefaultBasePath,
		ModelIDs:     append([]string(nil), DefaultModelIDs...),
		TextureSlots: &slots,
		Motions:      append([]string(nil), DefaultMotions...),
		CoreFiles:    append([]string(nil), DefaultCoreFiles...),
	}
}

// Textures returns the configured texture slot count.
func (m Manifest) Textures() int {
	if m.TextureSlots == nil {
		return DefaultTextureSlots
	}
	if *m.TextureSlots < 0 {
		return 0
	}
	return *m.TextureSlots
}

// Load reads a YAML manifest; unset fields keep their defaults. An empty path
// yields the built-in manifest.
func Load(path string) (Manifest, error) {
	m := Default()
	if strings.TrimSpace(path) == "" {
		return m, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %q: %w", path, err)
	}
	var in Manifest
	if err := yaml.Unmarshal(b, &in); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %q: %w", path, err)
	}
	if in.BasePath != "" {
		m.BasePath = in.BasePath
	}
	if in.ModelIDs != nil {
		m.ModelIDs = in.ModelIDs
	}
	if in.TextureSlots != nil {
		m.TextureSlots = in.TextureSlots
	}
	if in.Motions != nil {
		m.Motions = in.Motions
	}
	if in.CoreFiles != nil {
		m.CoreFiles = in.CoreFiles
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %q: %w", path, err)
	}
	return m, nil
}

func (m Manifest) Validate() error {
	if !strings.HasPrefix(m.BasePath, "/") {
		return fmt.Errorf("base_path must start with '/': %q", m.BasePath)
	}
	for _, id := range m.ModelIDs {
		if err := ValidateModelID(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateModelID rejects identifiers that would escape the model directory.
func ValidateModelID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidModelID)
	case strings.ContainsAny(id, `/\?#`), id == "..", id == ".":
		return fmt.Errorf("%w: %q", ErrInvalidModelID, id)
	}
	return nil
}
