// Package config loads front-end configuration for the wro command.
//
// Values are layered, lowest precedence first: built-in defaults, an
// optional wro.yaml (or wro.json, wro.toml) in the working directory or an
// explicit --config file, WRO_* environment variables (nested keys use
// underscores: WRO_CACHE_DB), and finally command-line overrides.
//
// Example wro.yaml:
//
//	model: groups.cue
//	root: web
//	failures: lenient
//	processors:
//	  pre: [bomStripper, cssUrlRewriting, semicolonAppender, uglify]
//	  post: [cssVariables]
//	  commands:
//	    - name: uglify
//	      phase: pre
//	      types: [js]
//	      argv: [uglifyjs, --compress]
//	      minimizes: true
//	cache:
//	  db: .wro/cache.db
//	  compression: zstd
//	vars:
//	  CDN: https://cdn.example.com
package config
