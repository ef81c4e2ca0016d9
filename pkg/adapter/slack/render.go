package slack

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/interfaces"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	slackapi "github.com/slack-go/slack"
)

// buildModalView maps the abstract modal tree onto a Block Kit modal view
func buildModalView(modal *model.Modal) slackapi.ModalViewRequest {
	submitText := modal.SubmitText
	if submitText == "" {
		submitText = "Submit"
	}

	blocks := make([]slackapi.Block, 0, len(modal.Inputs))
	for _, in := range modal.Inputs {
		var placeholder *slackapi.TextBlockObject
		if in.Placeholder != "" {
			placeholder = slackapi.NewTextBlockObject(slackapi.PlainTextType, in.Placeholder, false, false)
		}
		element := slackapi.NewPlainTextInputBlockElement(placeholder, in.Name)
		element.Multiline = in.Multiline
		label := slackapi.NewTextBlockObject(slackapi.PlainTextType, in.Label, false, false)
		blocks = append(blocks, slackapi.NewInputBlock(in.Name, label, nil, element))
	}

	return slackapi.ModalViewRequest{
		Type:       slackapi.VTModal,
		CallbackID: modal.CallbackID,
		Title:      slackapi.NewTextBlockObject(slackapi.PlainTextType, modal.Title, false, false),
		Submit:     slackapi.NewTextBlockObject(slackapi.PlainTextType, submitText, false, false),
		Blocks:     slackapi.Blocks{BlockSet: blocks},
	}
}

// buildCardBlocks maps the abstract card tree onto Block Kit blocks
func buildCardBlocks(card *model.Card) []slackapi.Block {
	var blocks []slackapi.Block
	if card.Title != "" {
		blocks = append(blocks, slackapi.NewHeaderBlock(
			slackapi.NewTextBlockObject(slackapi.PlainTextType, card.Title, false, false)))
	}
	if card.Text != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType, card.Text, false, false), nil, nil))
	}
	if len(card.Buttons) > 0 {
		elements := make([]slackapi.BlockElement, 0, len(card.Buttons))
		for _, b := range card.Buttons {
			elements = append(elements, slackapi.NewButtonBlockElement(b.ActionID, b.Value,
				slackapi.NewTextBlockObject(slackapi.PlainTextType, b.Label, false, false)))
		}
		blocks = append(blocks, slackapi.NewActionBlock("", elements...))
	}
	return blocks
}

// Renderer renders cards and modals into Block Kit JSON
type Renderer struct{}

var _ interfaces.CardRenderer = &Renderer{}

func (r *Renderer) RenderCard(card *model.Card) (json.RawMessage, error) {
	data, err := json.Marshal(buildCardBlocks(card))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to render card")
	}
	return data, nil
}

func (r *Renderer) RenderModal(modal *model.Modal) (json.RawMessage, error) {
	data, err := json.Marshal(buildModalView(modal))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to render modal")
	}
	return data, nil
}
