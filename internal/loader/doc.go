// Package loader reads group models from YAML or CUE files.
//
// Both formats describe the same structure: an ordered list of named
// groups, each an ordered list of items. An item is a resource URI, a
// resource with explicit attributes, or a reference to another group.
//
// YAML:
//
//	groups:
//	  - name: base
//	    abstract: true
//	    resources:
//	      - css/reset.css
//	  - name: site
//	    resources:
//	      - group: base
//	      - css/site.css
//	      - uri: js/vendor.min.js
//	        minimize: false
//
// CUE:
//
//	groups: {
//		base: {abstract: true, resources: ["css/reset.css"]}
//		site: resources: [{group: "base"}, "css/site.css"]
//	}
//
// The resource type is taken from the item's type field when present and
// from the URI extension otherwise. Group references are expanded with
// model.Flatten.
package loader
