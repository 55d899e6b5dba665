package domain

// Address is the postal address attached to a user profile.
type Address struct {
	Street       string `json:"rua,omitempty"`
	Number       string `json:"numero,omitempty"`
	Complement   string `json:"complemento,omitempty"`
	Neighborhood string `json:"bairro,omitempty"`
	City         string `json:"cidade,omitempty"`
	State        string `json:"estado,omitempty"`
	ZipCode      string `json:"cep,omitempty"`
}

// UserDetails is the profile record returned by the user details endpoint.
type UserDetails struct {
	Name         string   `json:"nome"`
	CPF          string   `json:"cpf"`
	Email        string   `json:"email"`
	Phone        string   `json:"telefone"`
	BirthDate    string   `json:"dataNascimento"`
	ProfileImage string   `json:"imagemPerfil"`
	Address      *Address `json:"endereco,omitempty"`
	Role         string   `json:"role,omitempty"`
}

// ProfessionalProfile is the sub-record loaded only for professional accounts.
type ProfessionalProfile struct {
	Specialties []string          `json:"especialidades"`
	Bio         string            `json:"biografia"`
	Experience  string            `json:"experiencia"`
	SocialLinks map[string]string `json:"redesSociais,omitempty"`
}

// Profile is the hydrated identity shown to the rest of the application.
// It is always replaced wholesale, never patched.
type Profile struct {
	UserID       string               `json:"userId"`
	Role         Role                 `json:"role"`
	Name         string               `json:"name"`
	CPF          string               `json:"cpf"`
	Email        string               `json:"email"`
	Phone        string               `json:"phone"`
	BirthDate    string               `json:"birthDate"`
	ProfileImage string               `json:"profileImage"`
	Address      *Address             `json:"address,omitempty"`
	Professional *ProfessionalProfile `json:"professional,omitempty"`
}
