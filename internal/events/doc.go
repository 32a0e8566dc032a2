// Package events keeps the live analysis database and the snapshot store in
// step.
//
// # Touch, save, update
//
// Every analyst mutation of the live database ends up as a Touch* call on a
// Session, usually through Notify from a host change hook. Touches only
// record which entities changed, deduplicated by derived identity, and leave
// a short change marker on the repository's pending commit message.
//
// Save reconciles the recorded entities against current live state. Each
// record is re-derived and either accepted, or deleted and accepted again
// under its new identity (renames, moves, retyping). The resulting batch is
// written to the store and committed through the Repository. Pending records
// are cleared when Save returns, whatever the commit outcome.
//
// Update asks the Repository for the files that changed since the last
// synchronization and hands them to Load, which expands them into a
// self-consistent closure and replays it into the live database.
//
// # Example
//
//	sess := events.New(events.Config{
//	    DB:       db,
//	    Repo:     repository,
//	    Store:    st,
//	    Listener: db.Listener(),
//	    Logger:   logger,
//	})
//	db.OnChange(sess.Notify)
//	...
//	stats, err := sess.Save(ctx)
//
// A Session is not safe for concurrent use: it belongs to the goroutine that
// owns the live database.
package events
