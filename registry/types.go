package registry

// Metadata is the subset of a registry metadata document used by a migration.
type Metadata struct {
	Name     string             `json:"name,omitempty"`
	DistTags map[string]string  `json:"dist-tags,omitempty"`
	Versions map[string]Version `json:"versions"`
}

// Version is one entry of Metadata.Versions.
type Version struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Dist    *Dist  `json:"dist,omitempty"`
}

// Dist describes where and how a version's tarball is distributed.
type Dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum,omitempty"`
	Integrity string `json:"integrity,omitempty"`
}

// Tarball is a located download for one version.
type Tarball struct {
	Version   string
	URL       string
	Shasum    string
	Integrity string
}

// Response is a raw registry answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// VersionKeys returns the version strings of m in migration order.
func (m *Metadata) VersionKeys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.Versions))
	for k := range m.Versions {
		keys = append(keys, k)
	}
	SortVersions(keys)
	return keys
}

// Has reports whether m lists version.
func (m *Metadata) Has(version string) bool {
	if m == nil {
		return false
	}
	_, ok := m.Versions[version]
	return ok
}

// Clone returns a copy of m whose Versions map can be modified freely.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := &Metadata{
		Name:     m.Name,
		Versions: make(map[string]Version, len(m.Versions)),
	}
	if m.DistTags != nil {
		c.DistTags = make(map[string]string, len(m.DistTags))
		for k, v := range m.DistTags {
			c.DistTags[k] = v
		}
	}
	for k, v := range m.Versions {
		if v.Dist != nil {
			d := *v.Dist
			v.Dist = &d
		}
		c.Versions[k] = v
	}
	return c
}
