// Package config provides the task registry and the YAML configuration of
// datasets and the task graph.
//
// Register task factories by type name, then describe the pipeline in YAML
// as a mapping of task name to entry. Mapping order is kept and breaks
// ties when ordering the graph:
//
//	pipeline:
//	  overwrite: false
//	  tasks:
//	    ndvi:
//	      task: norm_diff
//	      require: {data: [nir, red]}
//	      output: {data: [ndvi]}
//	      config: {a: nir, b: red}
//	    ccdc:
//	      task: ccdc
//	      require: {data: [red, nir, ndvi]}
//	      output: {record: [ccdc]}
//	      config: {consecutive: 5, design: "1 + x + harm(x, 1)"}
//	      timeout: 10s
//
// Load reads a file and applies PIXELPIPE_* environment overrides. Build a
// runnable pipeline with BuildPipeline(registry, config).
package config
