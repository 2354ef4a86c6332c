package config

import "time"

// Sample returns a runnable configuration: one observer and six nearby
// targets in ECEF, occluded only by the WGS84 ellipsoid.
func Sample() *Config {
	return &Config{
		Session: SessionConfig{
			Workers:      4,
			QueryTimeout: 5 * time.Second,
		},
		Observer: SiteConfig{
			ID:   "observer",
			Name: "Observer",
			ECEF: &ECEFConfig{X: 1216379.1782947562, Y: -4736305.994587113, Z: 4081359.5125561724},
		},
		Targets: []SiteConfig{
			{ID: "t1", ECEF: &ECEFConfig{X: 1216333.057784025, Y: -4736281.086708096, Z: 4081394.1726688854}},
			{ID: "t2", ECEF: &ECEFConfig{X: 1216330.6999324537, Y: -4736280.802673173, Z: 4081394.983483405}},
			{ID: "t3", ECEF: &ECEFConfig{X: 1216336.2123065037, Y: -4736271.291543718, Z: 4081386.2335290858}},
			{ID: "t4", ECEF: &ECEFConfig{X: 1216344.791616743, Y: -4736269.0712712, Z: 4081379.8397003785}},
			{ID: "t5", ECEF: &ECEFConfig{X: 1216308.2487227658, Y: -4736249.094535465, Z: 4081411.3065826776}},
			{ID: "t6", ECEF: &ECEFConfig{X: 1216396.0036570462, Y: -4736309.345371385, Z: 4081318.018882543}},
		},
		Scene: SceneConfig{
			Layers: []LayerConfig{{Name: "earth", Type: LayerWGS84}},
		},
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
			MaxWorkers:  8,
			MaxTargets:  10000,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "sightline",
			SampleRatio: 1,
		},
	}
}
