// Package icons resolves aircraft to icon classes and caches the compiled
// rendering resources so recolors and rotations never rebuild a visual.
package icons

import "strings"

// Class identifies one icon shape in the closed catalog.
type Class string

const (
	ClassA1      Class = "A1" // light
	ClassA2      Class = "A2" // small
	ClassA3      Class = "A3" // large
	ClassA4      Class = "A4" // high vortex large
	ClassA5      Class = "A5" // heavy
	ClassA6      Class = "A6" // high performance
	ClassA7      Class = "A7" // rotorcraft
	ClassB1      Class = "B1" // glider
	ClassB2      Class = "B2" // lighter than air
	ClassB3      Class = "B3" // parachutist
	ClassB4      Class = "B4" // ultralight
	ClassB6      Class = "B6" // UAV
	ClassB7      Class = "B7" // space vehicle
	ClassC1      Class = "C1" // surface emergency vehicle
	ClassC2      Class = "C2" // surface service vehicle
	ClassC3      Class = "C3" // fixed obstruction
	ClassC4      Class = "C4" // cluster obstacle
	ClassC5      Class = "C5" // line obstacle
	ClassDefault Class = "default"
)

// categoryClasses maps specific classification codes to icon classes.
// Codes 0 (unknown) and 1 (no info) are deliberately absent so resolution
// falls through to the type-string heuristics.
var categoryClasses = map[int]Class{
	2:  ClassA1,
	3:  ClassA2,
	4:  ClassA3,
	5:  ClassA4,
	6:  ClassA5,
	7:  ClassA6,
	8:  ClassA7,
	9:  ClassB1,
	10: ClassB2,
	11: ClassB3,
	12: ClassB4,
	13: ClassB6,
	14: ClassB7,
	15: ClassC1,
	16: ClassC2,
	17: ClassC3,
	18: ClassC4,
	19: ClassC5,
	20: ClassDefault,
}

// typeHeuristic matches an aircraft type/model string to an icon class.
// The list is order sensitive and the first match wins.
type typeHeuristic struct {
	keywords []string
	class    Class
}

var typeHeuristics = []typeHeuristic{
	{[]string{"helicopter", "rotorcraft", "ec135", "ec145", "a109", "s-76", "bell", "r44", "r66"}, ClassA7},
	{[]string{"glider", "sailplane", "ask", "discus"}, ClassB1},
	{[]string{"balloon", "airship", "zeppelin", "blimp"}, ClassB2},
	{[]string{"uav", "drone", "unmanned", "reaper", "global hawk"}, ClassB6},
	{[]string{"fighter", "f-16", "f-18", "f-35", "typhoon", "rafale", "gripen", "tornado"}, ClassA6},
	{[]string{"747", "777", "787", "a330", "a340", "a350", "a380", "il-96", "md-11", "heavy"}, ClassA5},
	{[]string{"757", "767", "a310", "b757"}, ClassA4},
	{[]string{"a319", "a320", "a321", "737", "mc-21", "tu-154"}, ClassA3},
	{[]string{"crj", "e170", "e175", "e190", "e195", "atr", "dash 8", "dhc-8", "fokker", "saab"}, ClassA2},
	{[]string{"cessna", "piper", "cirrus", "diamond", "beech", "mooney", "pa-28", "c172", "c182"}, ClassA1},
}

// Resolve picks the icon class for an aircraft. A specific classification
// code wins; unknown and no-info codes fall through to the type-string
// heuristics; with neither, the default class is returned.
func Resolve(category *int, typeString string) Class {
	if category != nil {
		if class, ok := categoryClasses[*category]; ok {
			return class
		}
	}
	return resolveByType(typeString)
}

func resolveByType(typeString string) Class {
	if typeString == "" {
		return ClassDefault
	}
	lower := strings.ToLower(typeString)
	for _, h := range typeHeuristics {
		for _, kw := range h.keywords {
			if strings.Contains(lower, kw) {
				return h.class
			}
		}
	}
	return ClassDefault
}
