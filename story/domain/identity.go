package domain

// IdentityResolver deriva a ContributorKey a partir do token guardado pelo cliente.
//
// Se o token recebido estiver ausente ou malformado, um novo é emitido e
// devolvido em issued (o chamador persiste no cliente, ex.: cookie).
// Quando o token é aceito, issued vem vazio.
type IdentityResolver interface {
	Resolve(token string) (key ContributorKey, issued string)
}
