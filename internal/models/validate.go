/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Decimals are compared as floats so numeric tags (gt, gte) apply to them.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks the struct tags of any model
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// Validate checks that exactly the variant named by Type is present and valid
func (p SyncPayload) Validate() error {
	if _, err := ParseSyncType(string(p.Type)); err != nil {
		return err
	}
	if n := p.variantCount(); n != 1 {
		return fmt.Errorf("payload of type %s must carry exactly one record, got %d", p.Type, n)
	}

	var record interface{}
	switch p.Type {
	case SyncTypeOrder:
		record = p.Order
	case SyncTypeDeposit:
		record = p.Deposit
	case SyncTypeUser:
		record = p.User
	case SyncTypePaymentMethod:
		record = p.PaymentMethod
	case SyncTypeRate:
		record = p.Rate
	case SyncTypePlatformDeposit:
		record = p.PlatformDeposit
	}
	if reflect.ValueOf(record).IsNil() {
		return fmt.Errorf("payload of type %s is missing its %s record", p.Type, p.Type)
	}
	if err := validate.Struct(record); err != nil {
		return fmt.Errorf("invalid %s record: %w", p.Type, err)
	}
	return nil
}
