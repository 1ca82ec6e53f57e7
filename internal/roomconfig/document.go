// Package roomconfig implements the configuration collaborator
// (ConfigStore): a YAML document holding camera pose, room geometry, grid
// shape, and per-cell configuration, loaded/saved atomically and
// optionally watched for external edits.
package roomconfig

import (
	"github.com/soundroom/engine/internal/geometry"
	"github.com/soundroom/engine/internal/grid"
)

// Document is the on-disk shape: camera, room and cells. The grid's rows
// and cols are stored in the room section; there is no separate grid
// section.
type Document struct {
	Camera CameraDoc          `yaml:"camera"`
	Room   RoomDoc            `yaml:"room"`
	Cells  map[string]CellDoc `yaml:"cells"`
}

// CameraDoc mirrors geometry.Pose plus the legacy cam_offset_m field,
// which is parsed so documents carrying it still load, but is zeroed by
// Store.Load before it reaches geometry.Pose and is never written back by
// Store.Save (DESIGN.md open-question decision #3).
type CameraDoc struct {
	HeightM     float64 `yaml:"height_m"`
	PitchDeg    float64 `yaml:"pitch_deg"`
	WallDistM   float64 `yaml:"wall_dist_m"`
	CamOffsetM  float64 `yaml:"cam_offset_m,omitempty"`
	OffsetDX    float64 `yaml:"calibration_offset_dx"`
	OffsetDY    float64 `yaml:"calibration_offset_dy"`
	MinDepthM   float64 `yaml:"min_depth_m,omitempty"`
	MaxDepthM   float64 `yaml:"max_depth_m,omitempty"`
}

// RoomDoc mirrors grid.RoomConfig.
type RoomDoc struct {
	WidthM float64 `yaml:"width_m"`
	DepthM float64 `yaml:"depth_m"`
	Rows   int     `yaml:"rows"`
	Cols   int     `yaml:"cols"`
}

// DmxDoc mirrors grid.DmxConfig.
type DmxDoc struct {
	Universe     int        `yaml:"universe"`
	Address      int        `yaml:"address"`
	ChannelCount int        `yaml:"channel_count"`
	Color        [3]uint8   `yaml:"color"`
}

// CellDoc mirrors grid.CellConfig's persisted fields (world bounds are
// never persisted; they are recomputed by grid.Registry.Rebuild).
type CellDoc struct {
	Name      string  `yaml:"name"`
	AudioPath string  `yaml:"audio_path"`
	Volume    float64 `yaml:"volume"`
	Active    bool    `yaml:"active"`
	Dmx       DmxDoc  `yaml:"dmx"`
}

func cameraDocToPose(c CameraDoc) geometry.Pose {
	pose := geometry.DefaultPose()
	pose.HeightM = c.HeightM
	pose.PitchDeg = c.PitchDeg
	pose.WallDistM = c.WallDistM
	pose.Offset = geometry.Offset{DX: c.OffsetDX, DY: c.OffsetDY}
	if c.MinDepthM > 0 {
		pose.MinDepthM = c.MinDepthM
	}
	if c.MaxDepthM > 0 {
		pose.MaxDepthM = c.MaxDepthM
	}
	return pose
}

func poseToCameraDoc(p geometry.Pose) CameraDoc {
	return CameraDoc{
		HeightM:    p.HeightM,
		PitchDeg:   p.PitchDeg,
		WallDistM:  p.WallDistM,
		CamOffsetM: 0,
		OffsetDX:   p.Offset.DX,
		OffsetDY:   p.Offset.DY,
		MinDepthM:  p.MinDepthM,
		MaxDepthM:  p.MaxDepthM,
	}
}

func roomDocToConfig(r RoomDoc) grid.RoomConfig {
	return grid.RoomConfig{WidthM: r.WidthM, DepthM: r.DepthM, Rows: r.Rows, Cols: r.Cols}
}

func roomConfigToDoc(r grid.RoomConfig) RoomDoc {
	return RoomDoc{WidthM: r.WidthM, DepthM: r.DepthM, Rows: r.Rows, Cols: r.Cols}
}

func cellDocToConfig(d CellDoc) grid.CellConfig {
	return grid.CellConfig{
		Name:      d.Name,
		AudioPath: d.AudioPath,
		Volume:    d.Volume,
		Active:    d.Active,
		Dmx: grid.DmxConfig{
			Universe:     d.Dmx.Universe,
			Address:      d.Dmx.Address,
			ChannelCount: d.Dmx.ChannelCount,
			Color:        grid.Color{R: d.Dmx.Color[0], G: d.Dmx.Color[1], B: d.Dmx.Color[2]},
		},
	}
}

func cellConfigToDoc(c grid.CellConfig) CellDoc {
	return CellDoc{
		Name:      c.Name,
		AudioPath: c.AudioPath,
		Volume:    c.Volume,
		Active:    c.Active,
		Dmx: DmxDoc{
			Universe:     c.Dmx.Universe,
			Address:      c.Dmx.Address,
			ChannelCount: c.Dmx.ChannelCount,
			Color:        [3]uint8{c.Dmx.Color.R, c.Dmx.Color.G, c.Dmx.Color.B},
		},
	}
}
