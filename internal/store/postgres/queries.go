package postgres

const querySelectSchedule = `
SELECT id, title, description, type, category, interval, execution_date,
       active, remove_on_complete, start_time, end_time, owner_id,
       created_at, updated_at
FROM schedules
WHERE id = $1
`

const queryListSchedules = `
SELECT id, title, description, type, category, interval, execution_date,
       active, remove_on_complete, start_time, end_time, owner_id,
       created_at, updated_at
FROM schedules
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`

const queryListAllSchedules = `
SELECT id, title, description, type, category, interval, execution_date,
       active, remove_on_complete, start_time, end_time, owner_id,
       created_at, updated_at
FROM schedules
ORDER BY created_at ASC
`

const queryInsertSchedule = `
INSERT INTO schedules (id, title, description, type, category, interval,
                       execution_date, active, remove_on_complete,
                       start_time, end_time, owner_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

const queryUpdateSchedule = `
UPDATE schedules
SET title = $2, description = $3, type = $4, category = $5, interval = $6,
    execution_date = $7, active = $8, remove_on_complete = $9,
    start_time = $10, end_time = $11, updated_at = $12
WHERE id = $1
`

const querySetScheduleActive = `
UPDATE schedules
SET active = $2, updated_at = $3
WHERE id = $1
`

const queryDeleteSchedule = `
DELETE FROM schedules WHERE id = $1
RETURNING id
`

// Task rows load in creation order; the order is load-bearing for dispatch.
const querySelectTasksBySchedule = `
SELECT id, schedule_id, text, language, volume, status, attempts, result,
       created_at, updated_at
FROM tasks
WHERE schedule_id = $1
ORDER BY created_at ASC, id ASC
`

const queryListAllTasks = `
SELECT id, schedule_id, text, language, volume, status, attempts, result,
       created_at, updated_at
FROM tasks
ORDER BY schedule_id, created_at ASC, id ASC
`

const querySelectTask = `
SELECT id, schedule_id, text, language, volume, status, attempts, result,
       created_at, updated_at
FROM tasks
WHERE id = $1
`

const queryInsertTask = `
INSERT INTO tasks (id, schedule_id, text, language, volume, status,
                   attempts, result, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const queryUpdateTask = `
UPDATE tasks
SET text = $2, language = $3, volume = $4, status = $5, updated_at = $6
WHERE id = $1
`

const queryUpdateTaskOutcome = `
UPDATE tasks
SET status = $2, attempts = attempts + 1, result = $3, updated_at = $4
WHERE id = $1
`

const queryDeleteTask = `
DELETE FROM tasks WHERE id = $1
RETURNING id
`
