package shadow

import (
	"io"

	"github.com/chewxy/math32"
	"github.com/pelletier/go-toml/v2"
)

// Settings are the parameters a shadow technique is set up with. Settings
// are usually loaded from a TOML file:
//
//	texture_size = 2048
//	algorithm = "PCF"
//	kernel = "9Tap"
//	texture_type = "HALF_FLOAT"
type Settings struct {
	TextureSize int       `toml:"texture_size"`
	Algorithm   Algorithm `toml:"algorithm"`
	Kernel      Kernel    `toml:"kernel"`
	TextureType Precision `toml:"texture_type"`
	// LightNum is the number of shadow casting lights.
	LightNum   int     `toml:"light_num"`
	Bias       float32 `toml:"bias"`
	VSMEpsilon float32 `toml:"vsm_epsilon"`
	Exponent0  float32 `toml:"exponent"`
	Exponent1  float32 `toml:"exponent1"`
	// BaseTextureUnit is the texture unit of the first light's shadow map.
	// Following lights use consecutive units.
	BaseTextureUnit    int    `toml:"base_texture_unit"`
	ReceivesShadowMask uint32 `toml:"receives_shadow_mask"`
	CastsShadowMask    uint32 `toml:"casts_shadow_mask"`
	// Supersample is the shadow map supersampling level, 0 disables it.
	Supersample            int     `toml:"supersample"`
	Blur                   bool    `toml:"blur"`
	BlurKernelSize         float32 `toml:"blur_kernel_size"`
	BlurTextureSize        int     `toml:"blur_texture_size"`
	FOV                    float32 `toml:"fov"`
	MinimumNearFarRatio    float32 `toml:"minimum_near_far_ratio"`
	MaximumDistance        float32 `toml:"maximum_distance"`
	PerspectiveCutOffAngle float32 `toml:"perspective_cutoff_angle"`
	NumShadowMapsPerLight  int     `toml:"shadow_maps_per_light"`
	ComputeNearFarOverride bool    `toml:"compute_near_far_override"`
	UseTextureOverride     bool    `toml:"use_texture_override"`
	DebugDraw              bool    `toml:"debug_draw"`
}

// DefaultSettings returns ESM shadows on a 1024 texel byte shadow map.
func DefaultSettings() Settings {
	return Settings{
		TextureSize:            1024,
		Algorithm:              AlgorithmESM,
		Kernel:                 Kernel4Tap,
		TextureType:            PrecisionByte,
		LightNum:               1,
		Bias:                   0.005,
		VSMEpsilon:             0.0008,
		Exponent0:              40,
		Exponent1:              10,
		BaseTextureUnit:        1,
		ReceivesShadowMask:     0xffffffff,
		CastsShadowMask:        0xffffffff,
		BlurKernelSize:         4,
		BlurTextureSize:        256,
		FOV:                    50,
		MinimumNearFarRatio:    0.05,
		MaximumDistance:        math32.MaxFloat32,
		PerspectiveCutOffAngle: 2,
		NumShadowMapsPerLight:  1,
		ComputeNearFarOverride: true,
		UseTextureOverride:     true,
	}
}

// LoadSettings decodes TOML settings from r. Absent keys keep their default
// value and unknown keys are an error.
func LoadSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&s)
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Encode writes the settings to w as TOML.
func (s Settings) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(s)
}

// Config returns the attribute configuration of the shadow casting light with the given index.
func (s Settings) Config(lightIndex int) Config {
	return Config{
		Algorithm:   s.Algorithm,
		Kernel:      s.Kernel,
		Precision:   s.TextureType,
		Bias:        s.Bias,
		Exponent0:   s.Exponent0,
		Exponent1:   s.Exponent1,
		VSMEpsilon:  s.VSMEpsilon,
		MapSize:     float32(s.TextureSize),
		TextureUnit: s.BaseTextureUnit + lightIndex,
	}
}
