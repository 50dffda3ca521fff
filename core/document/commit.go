package document

import (
	"context"
	"errors"

	"github.com/albmarin/umongo/core/i18n"
	"github.com/albmarin/umongo/core/schema"
	"github.com/albmarin/umongo/ports"
)

// Validate runs the full pre-persist validation: required presence,
// every synchronous field check, document-level validators, and
// finally IO validators for the fields whose synchronous checks all
// passed. Field failures are aggregated; backend failures abort
// immediately and are never folded into the validation report.
//
// Required presence is enforced only until the first persist. A
// partially filled in-memory document is a legitimate intermediate
// state, and replaces of stored documents must not reject data the
// backend already holds.
func (d *Document) Validate(ctx context.Context) error {
	ve := schema.NewValidationError()

	if !d.persisted {
		for _, desc := range d.schema.Fields() {
			if !desc.Required {
				continue
			}
			if _, ok := d.values[desc.Name]; !ok {
				ve.Add(desc.Name, i18n.T("missing data for required field"))
			}
		}
	}

	ve.Fields.Merge(d.schema.Check(d.values).Fields)

	if !ve.HasErrors() {
		for _, validate := range d.schema.Validators() {
			if err := validate(d.values); err != nil {
				ve.AddSchema(err.Error())
			}
		}
	}

	sess := d.binding.IoSession()
	for _, desc := range d.schema.Fields() {
		if len(desc.IoValidators) == 0 {
			continue
		}
		if len(ve.Fields[desc.Name]) > 0 {
			continue
		}
		v, ok := d.values[desc.Name]
		if !ok || v == nil {
			continue
		}
		for _, iv := range desc.IoValidators {
			err := iv.RunIoValidation(ctx, v, sess)
			if err == nil {
				continue
			}
			var be *ports.BackendError
			if errors.As(err, &be) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			ve.Add(desc.Name, err.Error())
		}
	}

	return ve.OrNil()
}

// Commit validates the document and writes it to the backend: an
// insert for transient documents, a full replace for persisted ones.
// A missing primary key is generated. Unique index violations come
// back as a ValidationError naming the conflicting field.
func (d *Document) Commit(ctx context.Context) error {
	coll := d.binding.Collection()

	if err := d.Validate(ctx); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			d.binding.Metrics().ValidationFailed(coll.Name())
		}
		return err
	}

	pk := d.schema.PK()
	if v, ok := d.values[pk.Name]; !ok || v == nil {
		v, ferrs := pk.Load(d.binding.GenerateID())
		if len(ferrs) > 0 {
			ve := schema.NewValidationError()
			ve.Fields.MergeAt(pk.Name, ferrs)
			return ve
		}
		d.values[pk.Name] = v
	}

	storage := d.ToStorage()

	op := "insert"
	var err error
	if d.persisted {
		op = "replace"
		err = coll.ReplaceOne(ctx, d.storagePK(), storage)
	} else {
		err = coll.InsertOne(ctx, storage)
	}
	if err != nil {
		var dup *ports.DuplicateKeyError
		if errors.As(err, &dup) {
			d.binding.Metrics().ValidationFailed(coll.Name())
			field := d.binding.FieldForIndex(dup.Index)
			ve := schema.NewValidationError()
			if field == "" {
				ve.AddSchema(i18n.T("value must be unique"))
			} else {
				ve.Add(field, i18n.T("value must be unique"))
			}
			return ve
		}
		return err
	}

	d.persisted = true
	d.binding.Metrics().DocumentCommitted(coll.Name(), op)
	return nil
}

// Delete removes the document from the backend. Deleting a document
// that was never committed returns ErrNotCreated.
func (d *Document) Delete(ctx context.Context) error {
	if !d.persisted {
		return ErrNotCreated
	}
	if err := d.binding.Collection().DeleteOne(ctx, d.storagePK()); err != nil {
		return err
	}
	d.persisted = false
	d.binding.Metrics().DocumentCommitted(d.binding.Collection().Name(), "delete")
	return nil
}

// Reload replaces the in-memory values with the backend's current
// version of the document.
func (d *Document) Reload(ctx context.Context) error {
	if !d.persisted {
		return ErrNotCreated
	}
	raw, err := d.binding.Collection().FindOne(ctx, ports.Filter{schema.PKAttribute: d.storagePK()})
	if err != nil {
		return err
	}
	values, err := d.schema.FromStorage(raw)
	if err != nil {
		return err
	}
	d.values = values
	return nil
}

// storagePK renders the primary key for the storage world.
func (d *Document) storagePK() any {
	pk := d.schema.PK()
	return pk.Type.ToStorage(d.values[pk.Name])
}
