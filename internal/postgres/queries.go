package postgres

const (
	roomColumns = `id::text, name, participants, participants_key, is_group, created_by, last_seq, created_at, updated_at`

	queryRoomByKey = `SELECT ` + roomColumns + ` FROM chat_rooms WHERE participants_key = $1`
	queryRoomByID  = `SELECT ` + roomColumns + ` FROM chat_rooms WHERE id = $1`

	queryInsertRoom = `
		INSERT INTO chat_rooms (id, name, participants, participants_key, is_group, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (participants_key) DO NOTHING`
	queryRoomsByParticipant = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE $1 = ANY(participants)
		ORDER BY updated_at DESC, id`
)

const (
	messageColumns = `m.id::text, m.seq, m.room_id::text, m.sender, m.sender_full_name, m.body,
		m.client_ts, m.created_at, m.is_read, COALESCE(m.client_msg_id, '')`

	// locks the room row so sequences are gap free per room
	queryNextSeq = `
		UPDATE chat_rooms
		SET last_seq = last_seq + 1, updated_at = GREATEST(updated_at, $2)
		WHERE id = $1
		RETURNING last_seq`
	queryMessageByClientID = `
		SELECT ` + messageColumns + `
		FROM chat_messages m
		WHERE m.room_id = $1 AND m.sender = $2 AND m.client_msg_id = $3`
	queryInsertMessage = `
		INSERT INTO chat_messages (id, room_id, seq, sender, sender_full_name, body, client_ts, created_at, client_msg_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`
	queryHistory = `
		SELECT ` + messageColumns + `
		FROM chat_messages m
		WHERE m.room_id = $1
		ORDER BY m.seq`
	queryMessagesForUser = `
		SELECT ` + messageColumns + `
		FROM chat_messages m
		JOIN chat_rooms r ON r.id = m.room_id
		WHERE $1 = ANY(r.participants)
		ORDER BY m.room_id, m.seq`

	queryRoomLastSeq = `SELECT last_seq FROM chat_rooms WHERE id = $1`

	queryEnsureCursor = `
		INSERT INTO chat_read_cursors (room_id, username)
		VALUES ($1, $2)
		ON CONFLICT (room_id, username) DO NOTHING`
	queryLockCursor = `
		SELECT last_read_seq FROM chat_read_cursors
		WHERE room_id = $1 AND username = $2
		FOR UPDATE`
	queryMarkMessagesRead = `
		UPDATE chat_messages
		SET is_read = true
		WHERE room_id = $1 AND sender <> $2 AND seq > $3 AND seq <= $4
		RETURNING sender`
	queryAdvanceCursor = `
		UPDATE chat_read_cursors
		SET last_read_seq = $3, updated_at = now()
		WHERE room_id = $1 AND username = $2`
	queryUnreadCounts = `
		SELECT m.room_id::text, count(*)
		FROM chat_messages m
		LEFT JOIN chat_read_cursors c ON c.room_id = m.room_id AND c.username = $1
		WHERE m.room_id = ANY($2::text[]::uuid[])
		  AND m.sender <> $1
		  AND m.seq > COALESCE(c.last_read_seq, 0)
		GROUP BY m.room_id`
)

const (
	queryInsertUser = `
		INSERT INTO users (username, full_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`

	queryUserByUsername = `SELECT username, full_name, password_hash, created_at FROM users WHERE username = $1`
	queryListUsers      = `SELECT username, full_name, password_hash, created_at FROM users ORDER BY username`
)
