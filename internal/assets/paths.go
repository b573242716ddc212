package assets

import "fmt"

// PathSet is the candidate path set of one install. Core and Speculative are disjoint.
type PathSet struct {
	Core        []string
	Speculative []string
}

func (p PathSet) Len() int { return len(p.Core) + len(p.Speculative) }

// ModelPaths lists every file the naming conventions predict for one model,
// in a fixed order: descriptor, rig, physics, textures, motions.
func (m Manifest) ModelPaths(id string) []string {
	base := m.BasePath + id
	textures := m.Textures()

	paths := make([]string, 0, 3+textures+len(m.Motions))
	paths = append(paths,
		base+"/"+id+".model3.json",
		base+"/"+id+".moc3",
		base+"/"+id+".physics3.json",
	)
	for i := range textures {
		paths = append(paths, fmt.Sprintf("%s/textures/texture_%02d.png", base, i))
	}
	for _, motion := range m.Motions {
		paths = append(paths, base+"/motions/"+motion+".motion3.json")
	}
	return paths
}

// Generate builds the full candidate set. Paths listed as core are never
// repeated in the speculative subset.
func (m Manifest) Generate() PathSet {
	core := make([]string, 0, len(m.CoreFiles))
	seen := make(map[string]struct{}, len(m.CoreFiles))
	for _, p := range m.CoreFiles {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		core = append(core, p)
	}

	var rest []string
	for _, id := range m.ModelIDs {
		for _, p := range m.ModelPaths(id) {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			rest = append(rest, p)
		}
	}
	return PathSet{Core: core, Speculative: rest}
}
