package hashutil

import "sort"

var extensionNames = [...]string{
	"animation",
	"animation_curves",
	"bik",
	"bk2",
	"blend_set",
	"bones",
	"chroma",
	"common_package",
	"config",
	"data",
	"entity",
	"flow",
	"font",
	"ies",
	"ini",
	"ivf",
	"keys",
	"level",
	"lua",
	"material",
	"mod",
	"mouse_cursor",
	"navdata",
	"network_config",
	"oodle_net",
	"package",
	"particles",
	"physics_properties",
	"render_config",
	"rt_pipeline",
	"scene",
	"shader",
	"shader_library",
	"shader_library_group",
	"shading_environment",
	"shading_environment_mapping",
	"slug",
	"slug_album",
	"state_machine",
	"strings",
	"texture",
	"theme",
	"tome",
	"unit",
	"vector_field",
	"wwise_bank",
	"wwise_dep",
	"wwise_event",
	"wwise_metadata",
	"wwise_stream",
}

type extensionEntry struct {
	hash uint64
	name string
}

var extensionTable []extensionEntry

func init() {
	extensionTable = make([]extensionEntry, len(extensionNames))
	for i, name := range extensionNames {
		extensionTable[i] = extensionEntry{hash: Hash64A([]byte(name)), name: name}
	}
	sort.Slice(extensionTable, func(i, j int) bool {
		return extensionTable[i].hash < extensionTable[j].hash
	})
}

// ExtensionForHash looks up the printable extension for a known type-tag
// hash. The second return value is false when the hash is unknown, in which
// case callers fall back to a hex rendering of the hash.
func ExtensionForHash(ext uint64) (string, bool) {
	i := sort.Search(len(extensionTable), func(i int) bool {
		return extensionTable[i].hash >= ext
	})
	if i < len(extensionTable) && extensionTable[i].hash == ext {
		return extensionTable[i].name, true
	}
	return "", false
}

// HashForExtension returns the type-tag hash for a known extension name. It
// is mainly used by the CLI filter flag to turn a human-typed extension into
// the hash the dispatcher matches against.
func HashForExtension(name string) (uint64, bool) {
	for _, e := range extensionTable {
		if e.name == name {
			return e.hash, true
		}
	}
	return 0, false
}
