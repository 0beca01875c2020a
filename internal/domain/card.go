package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FoilTreatment es el acabado de la carta. Cualquier valor distinto de
// FoilNone cuenta como foil para precios y riesgo.
type FoilTreatment string

const (
	FoilNone    FoilTreatment = "non-foil"
	FoilRegular FoilTreatment = "foil"
	FoilEtched  FoilTreatment = "etched"
	FoilGalaxy  FoilTreatment = "galaxy"
	FoilRainbow FoilTreatment = "rainbow"
	FoilSurge   FoilTreatment = "surge"
)

// Condition es el grado de conservación de una carta o de un quote.
type Condition string

const (
	ConditionNM Condition = "NM"
	ConditionEX Condition = "EX"
	ConditionGD Condition = "GD"
	ConditionLP Condition = "LP"
	ConditionPL Condition = "PL"
	ConditionPO Condition = "PO"
)

// CardIdentity identifica una impresión concreta de una carta.
// Es la clave de agregación, de caché y de histórico: dos identidades son
// iguales solo si todos sus atributos coinciden exactamente.
type CardIdentity struct {
	Name            string        `json:"name" yaml:"name" validate:"required"`
	Set             string        `json:"set" yaml:"set" validate:"required"`
	SetCode         string        `json:"set_code,omitempty" yaml:"set_code"`
	CollectorNumber string        `json:"collector_number,omitempty" yaml:"collector_number"`
	Foil            FoilTreatment `json:"foil,omitempty" yaml:"foil" validate:"omitempty,oneof=non-foil foil etched galaxy rainbow surge"`
	Promo           string        `json:"promo,omitempty" yaml:"promo"`
	Artwork         string        `json:"artwork,omitempty" yaml:"artwork"`
	Border          string        `json:"border,omitempty" yaml:"border"`
	Language        string        `json:"language,omitempty" yaml:"language"`
	Signed          bool          `json:"signed,omitempty" yaml:"signed"`
}

var validate = validator.New()

// Validate comprueba el contrato mínimo de una identidad (nombre y set).
// Es el único error que el agregador deja escapar al llamador.
func (c CardIdentity) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s (%s): %v", ErrInvalidCard, c.Name, c.Set, err)
	}
	return nil
}

// IsFoil devuelve true para cualquier tratamiento foil.
func (c CardIdentity) IsFoil() bool {
	return c.Foil != "" && c.Foil != FoilNone
}

// Key devuelve la clave única de la variante. Incluye todos los atributos,
// sin normalizar mayúsculas: no hay matching difuso en esta capa.
func (c CardIdentity) Key() string {
	foil := c.Foil
	if foil == "" {
		foil = FoilNone
	}
	signed := "unsigned"
	if c.Signed {
		signed = "signed"
	}
	return strings.Join([]string{
		c.Name,
		c.Set,
		c.SetCode,
		c.CollectorNumber,
		string(foil),
		c.Promo,
		c.Artwork,
		c.Border,
		c.Language,
		signed,
	}, "|")
}

// String devuelve una etiqueta legible para logs y reportes.
func (c CardIdentity) String() string {
	if c.IsFoil() {
		return fmt.Sprintf("%s (%s) [%s]", c.Name, c.Set, c.Foil)
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Set)
}

// CollectionCard es una carta de la colección con la cantidad poseída.
type CollectionCard struct {
	Card      CardIdentity `json:"card" yaml:",inline"`
	Quantity  int          `json:"quantity" yaml:"quantity" validate:"gte=1"`
	Condition Condition    `json:"condition,omitempty" yaml:"condition"`
}

// Validate valida la identidad y la cantidad.
func (c CollectionCard) Validate() error {
	if err := c.Card.Validate(); err != nil {
		return err
	}
	if err := validate.Var(c.Quantity, "gte=1"); err != nil {
		return fmt.Errorf("%w: %s quantity %d", ErrInvalidCard, c.Card.Name, c.Quantity)
	}
	return nil
}

// Identities extrae las identidades de una colección manteniendo el orden.
func Identities(cards []CollectionCard) []CardIdentity {
	ids := make([]CardIdentity, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.Card)
	}
	return ids
}
