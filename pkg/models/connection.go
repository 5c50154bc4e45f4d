package models

// MainPort is the default port name for both outputs and inputs.
const MainPort = "main"

// Link is one target endpoint of a connection, stored under the source
// node's output port.
type Link struct {
	Node  string `json:"node"  validate:"required"`
	Port  string `json:"port"`
	Index int    `json:"index"`
}

// PortLinks groups the outgoing connections of one node: output port name to
// an ordered list of per-output-index link lists.
type PortLinks map[string][][]Link

// Connections holds all edges of a workflow, grouped by source node name.
type Connections map[string]PortLinks

// Add inserts a connection from (source, sourcePort, sourceIndex) to the
// given link, growing the per-port index list as needed.
func (c Connections) Add(source, sourcePort string, sourceIndex int, link Link) {
	if sourcePort == "" {
		sourcePort = MainPort
	}

	if link.Port == "" {
		link.Port = MainPort
	}

	ports, ok := c[source]
	if !ok {
		ports = PortLinks{}
		c[source] = ports
	}

	outputs := ports[sourcePort]
	for len(outputs) <= sourceIndex {
		outputs = append(outputs, []Link{})
	}

	outputs[sourceIndex] = append(outputs[sourceIndex], link)
	ports[sourcePort] = outputs
}

// Remove deletes the first connection matching the given endpoints and
// reports whether one was found. Empty ports default to the main port.
func (c Connections) Remove(source, sourcePort, target, targetPort string) bool {
	if sourcePort == "" {
		sourcePort = MainPort
	}

	if targetPort == "" {
		targetPort = MainPort
	}

	ports, ok := c[source]
	if !ok {
		return false
	}

	outputs, ok := ports[sourcePort]
	if !ok {
		return false
	}

	for i, links := range outputs {
		for j, link := range links {
			if link.Node == target && link.Port == targetPort {
				outputs[i] = append(links[:j:j], links[j+1:]...)
				c.compact(source, sourcePort)

				return true
			}
		}
	}

	return false
}

// compact drops empty trailing structures left behind by a removal so that
// serialized connection maps stay canonical.
func (c Connections) compact(source, sourcePort string) {
	ports := c[source]
	outputs := ports[sourcePort]

	empty := true

	for _, links := range outputs {
		if len(links) > 0 {
			empty = false

			break
		}
	}

	if empty {
		delete(ports, sourcePort)
	}

	if len(ports) == 0 {
		delete(c, source)
	}
}

// Total counts all links in the map.
func (c Connections) Total() int {
	total := 0

	for _, ports := range c {
		for _, outputs := range ports {
			for _, links := range outputs {
				total += len(links)
			}
		}
	}

	return total
}

// HasIncoming reports whether any connection targets the given node name.
func (c Connections) HasIncoming(name string) bool {
	for _, ports := range c {
		for _, outputs := range ports {
			for _, links := range outputs {
				for _, link := range links {
					if link.Node == name {
						return true
					}
				}
			}
		}
	}

	return false
}

// Each invokes fn for every link with its source coordinates. Iteration
// stops early when fn returns false.
func (c Connections) Each(fn func(source, sourcePort string, sourceIndex int, link Link) bool) {
	for source, ports := range c {
		for sourcePort, outputs := range ports {
			for sourceIndex, links := range outputs {
				for _, link := range links {
					if !fn(source, sourcePort, sourceIndex, link) {
						return
					}
				}
			}
		}
	}
}
