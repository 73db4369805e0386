/*
The sync package keeps the local view of a project in step with the server.

The server's manifest is the only source of truth. A refresh downloads the
whole manifest, replaces the previous one, and then reconciles the local cache
against it. Anything on disk that the manifest no longer mentions was deleted
or renamed by another user, so it's removed. Nothing is ever added to the
cache by a refresh: database files are only written when they're checked out
or opened.

Other packages never edit a manifest. After a successful change on the server,
they refresh and use the new manifest instead.
*/
package sync
