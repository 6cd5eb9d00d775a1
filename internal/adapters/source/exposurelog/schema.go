package exposurelog

import "logrep/internal/core/record"

// exposureSchema is the fields kept from /exposurelog/exposures
var exposureSchema = record.NewSchema(
	record.Field{Name: "obs_id", Kind: record.KindString},
	record.Field{Name: "id", Kind: record.KindInt},
	record.Field{Name: "instrument", Kind: record.KindString},
	record.Field{Name: "day_obs", Kind: record.KindInt},
	record.Field{Name: "seq_num", Kind: record.KindInt},
	record.Field{Name: "group_name", Kind: record.KindString},
	record.Field{Name: "observation_type", Kind: record.KindString},
	record.Field{Name: "observation_reason", Kind: record.KindString},
	record.Field{Name: "science_program", Kind: record.KindString},
	record.Field{Name: "target_name", Kind: record.KindString},
	record.Field{Name: "timespan_begin", Kind: record.KindTime},
	record.Field{Name: "timespan_end", Kind: record.KindTime},
)

// messageSchema is the fields kept from /exposurelog/messages
var messageSchema = record.NewSchema(
	record.Field{Name: "id", Kind: record.KindString},
	record.Field{Name: "obs_id", Kind: record.KindString},
	record.Field{Name: "instrument", Kind: record.KindString},
	record.Field{Name: "day_obs", Kind: record.KindInt},
	record.Field{Name: "seq_num", Kind: record.KindInt},
	record.Field{Name: "message_text", Kind: record.KindString},
	record.Field{Name: "exposure_flag", Kind: record.KindString},
	record.Field{Name: "level", Kind: record.KindInt},
	record.Field{Name: "tags", Kind: record.KindList},
	record.Field{Name: "urls", Kind: record.KindList},
	record.Field{Name: "user_id", Kind: record.KindString},
	record.Field{Name: "user_agent", Kind: record.KindString},
	record.Field{Name: "is_human", Kind: record.KindBool},
	record.Field{Name: "is_valid", Kind: record.KindBool},
	record.Field{Name: "site_id", Kind: record.KindString},
	record.Field{Name: "date_added", Kind: record.KindTime},
	record.Field{Name: "date_invalidated", Kind: record.KindTime},
)
