package billing

import "time"

// transitions lists the legal moves of the document state machine.
// PAID and CANCELLED are terminal.
var transitions = map[Event]map[Status]Status{
	EventSend: {
		StatusDraft: StatusSent,
	},
	EventView: {
		StatusSent: StatusViewed,
	},
	EventPay: {
		StatusSent:   StatusPaid,
		StatusViewed: StatusPaid,
	},
	EventMarkOverdue: {
		StatusSent:   StatusOverdue,
		StatusViewed: StatusOverdue,
	},
	EventCancel: {
		StatusDraft:   StatusCancelled,
		StatusSent:    StatusCancelled,
		StatusViewed:  StatusCancelled,
		StatusOverdue: StatusCancelled,
	},
}

// NextStatus resolves the target status for an event, enforcing the
// transition table and the invoice-only preconditions. It does not
// mutate the document.
func (d *Document) NextStatus(event Event, now time.Time) (Status, error) {
	byStatus, ok := transitions[event]
	if !ok {
		return "", &InvalidTransitionError{DocumentID: d.ID, Kind: d.Kind, From: d.Status, Event: event}
	}
	next, ok := byStatus[d.Status]
	if !ok {
		return "", &InvalidTransitionError{DocumentID: d.ID, Kind: d.Kind, From: d.Status, Event: event}
	}

	switch event {
	case EventPay:
		// Quotes never carry a balance.
		if d.Kind != KindInvoice {
			return "", &InvalidTransitionError{DocumentID: d.ID, Kind: d.Kind, From: d.Status, Event: event}
		}
	case EventMarkOverdue:
		if d.Kind != KindInvoice || d.DueDate == nil || !d.DueDate.Before(now) {
			return "", &InvalidTransitionError{DocumentID: d.ID, Kind: d.Kind, From: d.Status, Event: event}
		}
	}
	return next, nil
}

// Editable reports whether line items, customer details, tax rate or
// issue date may still change.
func (d *Document) Editable() bool {
	return d.Status == StatusDraft
}

// Terminal reports whether the document accepts no further transitions.
func (d *Document) Terminal() bool {
	return d.Status == StatusPaid || d.Status == StatusCancelled
}
