package properties

import "sort"

// Value types understood by the settings page.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Definition describes a well-known server.properties key.
type Definition struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Options     []string `json:"options,omitempty"`
}

// Definitions covers the keys the settings page knows how to edit.
var Definitions = map[string]Definition{
	"server-port":          {Type: TypeNumber, Description: "Server port", Category: "network"},
	"max-players":          {Type: TypeNumber, Description: "Maximum number of players", Category: "gameplay"},
	"motd":                 {Type: TypeString, Description: "Message shown in the server list", Category: "general"},
	"level-name":           {Type: TypeString, Description: "World name", Category: "world"},
	"level-seed":           {Type: TypeString, Description: "World seed", Category: "world"},
	"gamemode":             {Type: TypeString, Description: "Default game mode", Category: "gameplay", Options: []string{"survival", "creative", "adventure", "spectator"}},
	"difficulty":           {Type: TypeString, Description: "Difficulty", Category: "gameplay", Options: []string{"peaceful", "easy", "normal", "hard"}},
	"hardcore":             {Type: TypeBoolean, Description: "Hardcore mode", Category: "gameplay"},
	"pvp":                  {Type: TypeBoolean, Description: "Player versus player combat", Category: "gameplay"},
	"allow-flight":         {Type: TypeBoolean, Description: "Allow flight in survival", Category: "gameplay"},
	"spawn-monsters":       {Type: TypeBoolean, Description: "Spawn monsters", Category: "world"},
	"spawn-animals":        {Type: TypeBoolean, Description: "Spawn animals", Category: "world"},
	"spawn-npcs":           {Type: TypeBoolean, Description: "Spawn villagers", Category: "world"},
	"enable-command-block": {Type: TypeBoolean, Description: "Enable command blocks", Category: "gameplay"},
	"white-list":           {Type: TypeBoolean, Description: "Whitelist enabled", Category: "security"},
	"enforce-whitelist":    {Type: TypeBoolean, Description: "Kick players missing from the whitelist", Category: "security"},
	"online-mode":          {Type: TypeBoolean, Description: "Verify accounts against Mojang", Category: "security"},
	"view-distance":        {Type: TypeNumber, Description: "Render distance (chunks)", Category: "performance"},
	"simulation-distance":  {Type: TypeNumber, Description: "Simulation distance (chunks)", Category: "performance"},
	"max-tick-time":        {Type: TypeNumber, Description: "Maximum tick time before the watchdog stops the server (-1 disables)", Category: "performance"},
}

// Setting is a property enriched with its definition for display.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Definition
}

// Describe enriches every assignment of doc. Unknown keys are typed as
// strings in the "other" category.
func Describe(doc *Document) []Setting {
	seen := make(map[string]bool)
	var settings []Setting
	for _, p := range doc.Values() {
		if seen[p.Key] {
			continue
		}
		seen[p.Key] = true

		def, ok := Definitions[p.Key]
		if !ok {
			def = Definition{Type: TypeString, Category: "other"}
		}
		settings = append(settings, Setting{Key: p.Key, Value: p.Value, Definition: def})
	}
	return settings
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
