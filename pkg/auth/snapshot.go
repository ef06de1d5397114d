package auth

import (
	"github.com/cuemby/keystone/pkg/revision"
	"github.com/cuemby/keystone/pkg/store"
)

// StateSnapshot is a point-in-time dump of everything the permission
// cache and key index are derived from, used by pkg/consensus to take
// and restore raft snapshots without replaying the full command log.
// It is a flat struct of the domain's persisted entities, kept free of
// any index or cache state since both are cheaply rebuilt on restore.
type StateSnapshot struct {
	Revision int64
	Enabled  bool
	Users    []User
	Roles    []Role
}

// CurrentRevision returns the most recently allocated main revision
// without advancing it, for the consensus layer's header stamping
// between mutations.
func (c *Core) CurrentRevision() int64 {
	return c.rev.Current()
}

// Enabled reports the current auth_enable flag.
func (c *Core) Enabled() bool {
	return c.enabled.Load()
}

// SnapshotState collects the full persisted user/role set and the
// enabled flag for a raft FSMSnapshot.
func (c *Core) SnapshotState() (*StateSnapshot, error) {
	users, err := c.listUsers()
	if err != nil {
		return nil, err
	}
	roles, err := c.listRoles()
	if err != nil {
		return nil, err
	}

	snap := &StateSnapshot{
		Revision: c.rev.Current(),
		Enabled:  c.enabled.Load(),
		Users:    make([]User, len(users)),
		Roles:    make([]Role, len(roles)),
	}
	for i, u := range users {
		snap.Users[i] = *u
	}
	for i, r := range roles {
		snap.Roles[i] = *r
	}
	return snap, nil
}

// RestoreState replays a StateSnapshot onto a freshly-opened Core, as
// raft does when a node joins and installs a leader's snapshot
// instead of replaying its whole log. Every entity is persisted at
// the snapshot's own revision with locally-incrementing sub-revisions
// (their original sub-revision ordering is not observable after the
// fact and does not need to be reproduced); the revision counter is
// advanced to at least the snapshot's revision and the permission
// cache is rebuilt from the restored state.
func (c *Core) RestoreState(snap *StateSnapshot) error {
	main := snap.Revision
	var sub int64

	flag := []byte{0}
	if snap.Enabled {
		flag[0] = 1
	}
	data, err := store.Encode(flag)
	if err != nil {
		return err
	}
	c.idx.InsertOrUpdate(enableKey, main, sub)
	if err := c.store.Put(revision.Revision{Main: main, Sub: sub}, data); err != nil {
		return err
	}
	sub++

	for i := range snap.Users {
		u := snap.Users[i]
		if err := c.persistUser(&u, main, sub); err != nil {
			return err
		}
		sub++
	}
	for i := range snap.Roles {
		r := snap.Roles[i]
		if err := c.persistRole(&r, main, sub); err != nil {
			return err
		}
		sub++
	}

	c.rev.SetIfHigher(snap.Revision)
	c.enabled.Store(snap.Enabled)
	return c.rebuildCache()
}
