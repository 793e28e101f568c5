package database

const insertAsset = `
INSERT INTO assets (id, question_id, type, path, created_at, deleted_at)
VALUES (?, ?, ?, ?, ?, ?)`

const getAsset = `
SELECT id, question_id, type, path, created_at, deleted_at
FROM assets
WHERE id = ?`

const getLiveAssetsByQuestion = `
SELECT id, question_id, type, path, created_at, deleted_at
FROM assets
WHERE question_id = ? AND deleted_at IS NULL
ORDER BY created_at, id`

const markAssetRecycled = `
UPDATE assets
SET path = ?, deleted_at = ?
WHERE id = ? AND deleted_at IS NULL`

const deleteAsset = `
DELETE FROM assets
WHERE id = ?`

const insertOperation = `
INSERT INTO operations (operation, parameters, started_at, status)
VALUES (?, ?, ?, 'running')`

const finishOperation = `
UPDATE operations
SET status = ?, finished_at = ?
WHERE id = ?`

const listOperations = `
SELECT id, operation, parameters, started_at, finished_at, status
FROM operations
ORDER BY id DESC
LIMIT ?`
