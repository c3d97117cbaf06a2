package kernel

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config carries everything the kernel needs to come up. Every field has a
// hard default so a zero-configuration boot works in tests and tools.
type Config struct {
	// MemorySize is the guest address space in bytes: 1 MiB plus the HMA
	// overhang by default.
	MemorySize int `mapstructure:"memory_size"`

	// RootPspSegment is where the synthesized COMMAND.COM PSP lives.
	RootPspSegment uint16 `mapstructure:"root_psp_segment"`

	// LoadSegment is the first MCB header of the conventional-memory
	// chain; the first program's PSP lands at LoadSegment+1.
	LoadSegment uint16 `mapstructure:"load_segment"`

	// LastFreeSegment is the top of conventional memory, the paragraph
	// before graphics video memory.
	LastFreeSegment uint16 `mapstructure:"last_free_segment"`

	// DeviceDriverSegment holds the character-device driver chain.
	DeviceDriverSegment uint16 `mapstructure:"device_driver_segment"`

	// SdaSegment holds the DOS Swappable Data Area.
	SdaSegment uint16 `mapstructure:"sda_segment"`

	DosMajor uint8 `mapstructure:"dos_major"`
	DosMinor uint8 `mapstructure:"dos_minor"`

	// AllocationStrategy is the initial INT 21h/58h value.
	AllocationStrategy uint8 `mapstructure:"allocation_strategy"`

	// Mounts maps drive letters to host directories. Z: is always the
	// scratch drive and cannot be remapped here.
	Mounts map[string]string `mapstructure:"mounts"`

	// CurrentDrive is the boot drive letter.
	CurrentDrive string `mapstructure:"current_drive"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("memory_size", 0x10FFF0)
	v.SetDefault("root_psp_segment", 0x0060)
	v.SetDefault("load_segment", 0x0080)
	v.SetDefault("last_free_segment", 0x9FFF)
	v.SetDefault("device_driver_segment", 0x0070)
	v.SetDefault("sda_segment", 0x0050)
	v.SetDefault("dos_major", 5)
	v.SetDefault("dos_minor", 0)
	v.SetDefault("allocation_strategy", 0)
	v.SetDefault("current_drive", "C")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	cfg, _ := LoadConfig("")
	return cfg
}

// LoadConfig reads a configuration file (YAML, TOML, or JSON, decided by
// extension) over the defaults; path "" loads defaults and DOSK_*
// environment variables only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("dosk")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "error reading config %q", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "error decoding config")
	}
	return cfg, nil
}
