// Package repository is the portable data-access facade.
//
// A Connection wraps one backend handle and tracks its single active
// transaction. Repositories are typed views of one entity on a
// Connection; every call they make goes through the active transaction
// when there is one.
//
// Not-found conventions differ per method and callers rely on them:
//
//	FindOne, UpdateOne, UpsertOne, DeleteOne, SoftDeleteOne   nil, no error
//	FindMany, UpdateMany, DeleteMany, SoftDeleteMany          empty slice
//	FindOneOrFail                                             NOT_FOUND "Entity not found"
//	RestoreOne, RestoreMany                                   NOT_FOUND "Entity not found or already restored"
//
// Soft delete: rows whose soft-delete column is true are excluded from
// reads and mutations unless WithDeleted is set. Hard deletes see every
// row; restores see only deleted rows.
package repository
