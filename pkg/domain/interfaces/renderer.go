package interfaces

import (
	"encoding/json"

	"github.com/secmon-lab/omnichat/pkg/domain/model"
)

// CardRenderer converts the abstract Card/Modal trees into a
// platform-native payload (block array, adaptive-card JSON, inline
// keyboard, ...). Rendering is a presentation concern outside the gateway
// core; adapters only require the resulting payload before an outbound
// post or modal-open call.
type CardRenderer interface {
	RenderCard(card *model.Card) (json.RawMessage, error)
	RenderModal(modal *model.Modal) (json.RawMessage, error)
}
