package afcore

import (
	"context"
	"io"

	"gopkg.in/yaml.v3"
)

// DeviceGraphConfig is the declarative component-graph shape loaded from
// YAML: one device plus its components and the routes connecting them,
// the configuration-driven counterpart to calling CreateComponent/Connect
// by hand.
type DeviceGraphConfig struct {
	Device     DeviceYAML      `yaml:"device"`
	Components []ComponentYAML `yaml:"components"`
	Routes     []RouteYAML     `yaml:"routes"`
}

// DeviceYAML configures the Device itself.
type DeviceYAML struct {
	MaxClients       int `yaml:"max_clients"`
	NumRTWorkers     int `yaml:"num_rt_workers"`
	WorkerQueueDepth int `yaml:"worker_queue_depth"`
	ControlPoolSize  int `yaml:"control_pool_size"`
	EventPoolSize    int `yaml:"event_pool_size"`
}

// ComponentYAML names one component instance to create and the
// class-factory type to build it from, plus comp_create's buffer-count
// request (spec.md §4.10). Zero buffer counts are a valid default.
type ComponentYAML struct {
	Name             string `yaml:"name"`
	Type             string `yaml:"type"`
	NumInputBuffers  int    `yaml:"num_input_buffers"`
	NumOutputBuffers int    `yaml:"num_output_buffers"`
}

// RouteYAML connects one component's output port to another's input
// port, referencing components by the Name given in the components list.
type RouteYAML struct {
	From     string `yaml:"from"`
	FromPort int    `yaml:"from_port"`
	To       string `yaml:"to"`
	ToPort   int    `yaml:"to_port"`
}

// LoadGraphConfig decodes a component-graph YAML document.
func LoadGraphConfig(r io.Reader) (*DeviceGraphConfig, error) {
	var cfg DeviceGraphConfig
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, WrapError("config_load", ErrInvalidValue, err)
	}
	return &cfg, nil
}

// BuildDevice opens a Device from cfg.Device, creates every named
// component, and wires every route, returning the components indexed by
// their YAML name so the caller can drive comp_process/comp_get_status
// on them directly.
func BuildDevice(ctx context.Context, cfg *DeviceGraphConfig) (*Device, map[string]*Component, error) {
	d, err := Open(ctx, DeviceConfig{
		MaxClients:       cfg.Device.MaxClients,
		NumRTWorkers:     cfg.Device.NumRTWorkers,
		WorkerQueueDepth: cfg.Device.WorkerQueueDepth,
		ControlPoolSize:  cfg.Device.ControlPoolSize,
		EventPoolSize:    cfg.Device.EventPoolSize,
	})
	if err != nil {
		return nil, nil, err
	}

	named := make(map[string]*Component, len(cfg.Components))
	for _, cc := range cfg.Components {
		c, err := d.CreateComponentWithOptions(ctx, cc.Type, ComponentOptions{
			NumInputBuffers:  cc.NumInputBuffers,
			NumOutputBuffers: cc.NumOutputBuffers,
		})
		if err != nil {
			return d, named, WrapError("config_build", ErrAPIMisuse, err)
		}
		named[cc.Name] = c
	}

	for _, rc := range cfg.Routes {
		src, ok := named[rc.From]
		if !ok {
			return d, named, NewError("config_build", ErrInvalidValue, "unknown route source component "+rc.From)
		}
		dst, ok := named[rc.To]
		if !ok {
			return d, named, NewError("config_build", ErrInvalidValue, "unknown route destination component "+rc.To)
		}
		if err := d.Connect(src, rc.FromPort, dst, rc.ToPort); err != nil {
			return d, named, err
		}
	}

	return d, named, nil
}
