package swarm

import (
	"sort"
	"sync"
)

type memberSet map[string]struct{}

// Directory is the two-level index domain → swarm → peer ids.
//
// Swarm entries exist only while they have members and domain entries only
// while they have swarms; both are created on first join and removed the
// moment they empty.
type Directory struct {
	mu      sync.RWMutex
	domains map[string]map[string]memberSet
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{domains: make(map[string]map[string]memberSet)}
}

// Join adds peerID to swarm within domain. It reports whether the peer was
// newly added; joining twice is a no-op.
func (d *Directory) Join(domain, swarm, peerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	swarms, ok := d.domains[domain]
	if !ok {
		swarms = make(map[string]memberSet)
		d.domains[domain] = swarms
	}
	members, ok := swarms[swarm]
	if !ok {
		members = make(memberSet)
		swarms[swarm] = members
	}
	if _, ok := members[peerID]; ok {
		return false
	}
	members[peerID] = struct{}{}
	return true
}

// Leave removes peerID from swarm within domain and reports whether it was
// a member. Empty swarms and empty domains are deleted.
func (d *Directory) Leave(domain, swarm, peerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	swarms, ok := d.domains[domain]
	if !ok {
		return false
	}
	members, ok := swarms[swarm]
	if !ok {
		return false
	}
	if _, ok := members[peerID]; !ok {
		return false
	}

	delete(members, peerID)
	if len(members) == 0 {
		delete(swarms, swarm)
	}
	if len(swarms) == 0 {
		delete(d.domains, domain)
	}
	return true
}

// Members returns the sorted peer ids of swarm within domain. An unknown
// domain or swarm yields an empty, non-nil slice.
func (d *Directory) Members(domain, swarm string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.domains[domain][swarm]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Has reports whether peerID is a member of swarm within domain.
func (d *Directory) Has(domain, swarm, peerID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.domains[domain][swarm][peerID]
	return ok
}

// Size counts the members of swarm within domain other than requester.
func (d *Directory) Size(domain, swarm, requester string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.domains[domain][swarm]
	n := len(members)
	if _, ok := members[requester]; ok {
		n--
	}
	return max(n, 0)
}

// Swarms returns swarm name → member count for domain.
func (d *Directory) Swarms(domain string) map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]int, len(d.domains[domain]))
	for name, members := range d.domains[domain] {
		out[name] = len(members)
	}
	return out
}

// Counts returns the number of domains, swarms and memberships held.
func (d *Directory) Counts() (domains, swarms, memberships int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	domains = len(d.domains)
	for _, s := range d.domains {
		swarms += len(s)
		for _, members := range s {
			memberships += len(members)
		}
	}
	return domains, swarms, memberships
}

// Each calls fn for every (domain, swarm, peer) membership. fn runs under
// the read lock and must not call back into the directory.
func (d *Directory) Each(fn func(domain, swarm, peerID string)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for dom, swarms := range d.domains {
		for name, members := range swarms {
			for id := range members {
				fn(dom, name, id)
			}
		}
	}
}
