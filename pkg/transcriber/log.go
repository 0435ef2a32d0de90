package transcriber

import (
	"github.com/rs/zerolog/log"
)

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
