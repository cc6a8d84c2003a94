package capre

import (
	"github.com/tsingsun/capre/internal/staging"
)

// Summary is a session as listed to the user.
type Summary struct {
	staging.Meta
	Tabla2Count int
	Tabla3Count int
	// FecUltPrb and FecPrbAct are the test dates of the herd, YYYY-MM-DD.
	FecUltPrb string
	FecPrbAct string
}

// Sessions lists the sessions visible to deviceID, newest first, with their
// animal counts and herd test dates.
func Sessions(store *staging.Store, deviceID string) ([]Summary, error) {
	metas, err := store.List(deviceID)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(metas))
	for _, m := range metas {
		sess, err := store.Open(m.ID)
		if err != nil {
			return nil, err
		}
		s := Summary{Meta: m}
		if s.Tabla2Count, err = sess.Count("tabla2"); err != nil {
			return nil, err
		}
		if s.Tabla3Count, err = sess.Count("tabla3"); err != nil {
			return nil, err
		}
		row, ok, err := sess.First("tabla1")
		if err != nil {
			return nil, err
		}
		if ok {
			h := herdOf(row)
			s.FecUltPrb, s.FecPrbAct = formatDay(h.FecUltPrb), formatDay(h.FecPrbAct)
		}
		out = append(out, s)
	}
	return out, nil
}
