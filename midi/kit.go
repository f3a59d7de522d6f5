package midi

import (
	"fmt"
	"strconv"
	"strings"
)

// Kit maps 16 drum slots to MIDI notes
type Kit struct {
	Name  string
	Notes [16]uint8
}

// Slots names the 16 kit slots in order.
var Slots = [16]string{
	"kick",
	"snare",
	"closedHH",
	"openHH",
	"lowTom",
	"midTom",
	"highTom",
	"crash",
	"ride",
	"clap",
	"rimshot",
	"cowbell",
	"clave",
	"maracas",
	"lowConga",
	"highConga",
}

// aliases lets pattern instrument names find their slot.
var aliases = map[string]string{
	"bd":     "kick",
	"sd":     "snare",
	"hihat":  "closedHH",
	"hh":     "closedHH",
	"ch":     "closedHH",
	"oh":     "openHH",
	"cp":     "clap",
	"rs":     "rimshot",
	"cb":     "cowbell",
	"cy":     "crash",
	"rc":     "ride",
	"lt":     "lowTom",
	"mt":     "midTom",
	"ht":     "highTom",
	"tom":    "midTom",
	"cymbal": "crash",
}

// Kits contains all available drum kit mappings
var Kits = map[string]Kit{
	"gm": {
		Name:  "General MIDI",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"rd8": {
		// RD-8 snare sits on 40, not 38
		Name:  "Behringer RD-8",
		Notes: [16]uint8{36, 40, 42, 46, 45, 48, 50, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"tr8s": {
		Name:  "Roland TR-8S",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 62, 63},
	},
	"er1": {
		// slots 10-15 are placeholders on the ER-1
		Name:  "Korg ER-1",
		Notes: [16]uint8{36, 38, 42, 46, 40, 41, 43, 49, 45, 39, 37, 56, 75, 70, 64, 63},
	},
}

// DefaultKit is the default kit name
const DefaultKit = "gm"

// KitNames returns the list of available kit names
func KitNames() []string {
	return []string{"gm", "rd8", "tr8s", "er1"}
}

// GetKit returns a kit by name, defaulting to GM if not found
func GetKit(name string) Kit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits[DefaultKit]
}

// SlotIndex finds a slot by name or alias, ignoring case.
func SlotIndex(name string) (int, bool) {
	key := strings.ToLower(name)
	if a, ok := aliases[key]; ok {
		key = strings.ToLower(a)
	}
	for i, s := range Slots {
		if strings.ToLower(s) == key {
			return i, true
		}
	}
	return -1, false
}

// Note returns the kit's note for a slot name or alias.
func (k Kit) Note(slot string) (uint8, bool) {
	i, ok := SlotIndex(slot)
	if !ok {
		return 0, false
	}
	return k.Notes[i], true
}

// ResolveNote turns a preload source into a note number. Accepted forms are
// a note number ("36"), a kit and slot ("rd8:snare"), a slot in the default
// kit ("snare"), or "" to use the instrument id itself as the slot.
func ResolveNote(kit, id, source string) (uint8, error) {
	if source == "" {
		source = id
	}
	if n, err := strconv.Atoi(source); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("note %d out of range 0-127", n)
		}
		return uint8(n), nil
	}
	k := GetKit(kit)
	slot := source
	if name, rest, ok := strings.Cut(source, ":"); ok {
		var found bool
		if k, found = Kits[name]; !found {
			return 0, fmt.Errorf("unknown kit %q", name)
		}
		slot = rest
	}
	note, ok := k.Note(slot)
	if !ok {
		return 0, fmt.Errorf("unknown drum slot %q", slot)
	}
	return note, nil
}
